package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/uaparser"
)

// brokenClicks fails every write.
type brokenClicks struct {
	repository.ClickRepository
	calls int
}

func (b *brokenClicks) RecordClick(context.Context, *models.ClickEvent, int64) error {
	b.calls++
	return apperrors.E(apperrors.Transient, "test", errors.New("database is locked"))
}

func TestResolve_RecordsClickAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCampaign(t, "Redirect")
	pub := &capturePublisher{}
	r := f.redirector(false, nil, pub)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	res, err := r.Resolve(ctx, c.ShortCode, RequestContext{
		IPAddress:  "1.2.3.4",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Referrer:   "https://www.google.com/",
		ReceivedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, c.OriginalURL, res.URL)
	assert.True(t, res.SessionMinted)
	assert.NotEmpty(t, res.SessionID)
	assert.True(t, res.Recorded)

	clicks, err := f.clicks.ListByShortCode(ctx, c.ShortCode, 10)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	ev := clicks[0]
	assert.Equal(t, models.EventTypeClick, ev.EventType)
	assert.True(t, ev.IsBounce)
	assert.False(t, ev.IsConversion)
	assert.Equal(t, 0, ev.TimeOnPage)
	assert.Equal(t, res.SessionID, ev.SessionID)
	assert.Equal(t, "Karnataka", ev.State)
	assert.Equal(t, uaparser.DeviceDesktop, ev.DeviceType)
	assert.True(t, at.Equal(ev.ClickedAt))

	stored, err := f.campaigns.GetCampaign(ctx, c.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.TotalClicks)
	assert.EqualValues(t, 1, stored.UniqueVisitors)

	require.Len(t, pub.clicks, 1)
	assert.Equal(t, c.ShortCode, pub.clicks[0].ShortCode)
	assert.Equal(t, "Redirect", pub.clicks[0].CampaignName)
	assert.Equal(t, res.SessionID, pub.clicks[0].SessionID)
}

func TestResolve_CampaignCreatedByAnotherProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.WarmFilter(ctx)
	require.NoError(t, err)

	other := NewCampaignService(f.campaigns, f.clicks, nil, nil, "https://go.example.com/", zap.NewNop())
	c, err := other.CreateShortURL(ctx, CreateCampaignInput{URL: "example.com/cli", CampaignName: "From CLI"})
	require.NoError(t, err)
	require.False(t, f.registry.filter.MightContain(c.ShortCode))

	res, err := f.redirector(false, nil, nil).Resolve(ctx, c.ShortCode, RequestContext{IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, c.OriginalURL, res.URL)
	assert.True(t, f.registry.filter.MightContain(c.ShortCode))

	n, err := f.clicks.CountClicks(ctx, c.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestResolve_KeepsExistingSession(t *testing.T) {
	f := newFixture(t)
	c := f.createCampaign(t, "Session")
	r := f.redirector(false, nil, nil)

	res, err := r.Resolve(context.Background(), c.ShortCode, RequestContext{SessionID: "visitor-1"})
	require.NoError(t, err)
	assert.Equal(t, "visitor-1", res.SessionID)
	assert.False(t, res.SessionMinted)
}

func TestResolve_InactiveCampaignRecordsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCampaign(t, "Paused")
	inactive := false
	_, err := f.registry.UpdateCampaign(ctx, c.ShortCode, CampaignPatch{IsActive: &inactive})
	require.NoError(t, err)

	pub := &capturePublisher{}
	_, err = f.redirector(false, nil, pub).Resolve(ctx, c.ShortCode, RequestContext{IPAddress: "1.2.3.4"})
	require.Error(t, err)
	assert.Equal(t, apperrors.NotFound, apperrors.KindOf(err))

	n, err := f.clicks.CountClicks(ctx, c.ShortCode)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.clicks)
}

func TestResolve_UnparseableAgentDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCampaign(t, "Agent")

	_, err := f.redirector(false, nil, nil).Resolve(ctx, c.ShortCode, RequestContext{UserAgent: ""})
	require.NoError(t, err)

	clicks, err := f.clicks.ListByShortCode(ctx, c.ShortCode, 1)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, uaparser.DeviceDesktop, clicks[0].DeviceType)
	assert.Equal(t, "Chrome", clicks[0].Browser)
	assert.Equal(t, uaparser.Unknown, clicks[0].OS)
}

func TestResolve_RecordFailurePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCampaign(t, "Policy")

	t.Run("fail open", func(t *testing.T) {
		broken := &brokenClicks{}
		pub := &capturePublisher{}
		res, err := f.redirector(false, broken, pub).Resolve(ctx, c.ShortCode, RequestContext{})
		require.NoError(t, err)
		assert.Equal(t, c.OriginalURL, res.URL)
		assert.False(t, res.Recorded)
		assert.Equal(t, 1, broken.calls)
		assert.Empty(t, pub.clicks)
	})

	t.Run("fail closed", func(t *testing.T) {
		broken := &brokenClicks{}
		_, err := f.redirector(true, broken, nil).Resolve(ctx, c.ShortCode, RequestContext{})
		require.Error(t, err)
		assert.Equal(t, apperrors.Transient, apperrors.KindOf(err))
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		xff, remote, want string
	}{
		{"203.0.113.7, 10.0.0.1", "10.0.0.1:5000", "203.0.113.7"},
		{"", "198.51.100.2:443", "198.51.100.2"},
		{"garbage", "198.51.100.2:443", "198.51.100.2"},
		{"", "[2001:db8::1]:80", "2001:db8::1"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClientIP(tt.xff, tt.remote), tt.xff+"|"+tt.remote)
	}
}
