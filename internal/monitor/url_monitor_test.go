package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

type staticCampaigns struct {
	campaigns []models.Campaign
	filter    repository.CampaignFilter
}

func (s *staticCampaigns) ListCampaigns(_ context.Context, f repository.CampaignFilter) ([]models.Campaign, error) {
	s.filter = f
	return s.campaigns, nil
}

type counter struct{ calls atomic.Int32 }

func (c *counter) ReconcileUniqueVisitors(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func (c *counter) WarmFilter(context.Context) (int, error) {
	c.calls.Add(1)
	return 3, nil
}

func (c *counter) PurgeExpiredSessions(context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestRunOnce_TracksDestinationState(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	source := &staticCampaigns{campaigns: []models.Campaign{
		{ID: 1, ShortCode: "abc123", OriginalURL: srv.URL + "/landing"},
		{ID: 2, ShortCode: "def456", OriginalURL: "://broken"},
	}}
	m := NewURLMonitor(source, Options{CheckURLs: true, CheckTimeout: time.Second}, zap.NewNop())

	m.RunOnce(context.Background())
	assert.Equal(t, "active", source.filter.Status)

	reachable, known := m.State(1)
	assert.True(t, known)
	assert.True(t, reachable)
	reachable, known = m.State(2)
	assert.True(t, known)
	assert.False(t, reachable)

	healthy.Store(false)
	m.RunOnce(context.Background())
	reachable, _ = m.State(1)
	assert.False(t, reachable)
}

func TestRunOnce_RunsMaintenanceSteps(t *testing.T) {
	c := &counter{}
	m := NewURLMonitor(&staticCampaigns{}, Options{Reconciler: c, Warmer: c, Sessions: c}, zap.NewNop())

	m.RunOnce(context.Background())
	assert.Equal(t, int32(3), c.calls.Load())

	_, known := m.State(1)
	assert.False(t, known)
}

func TestStart_StopsWithContext(t *testing.T) {
	c := &counter{}
	m := NewURLMonitor(&staticCampaigns{}, Options{Interval: 10 * time.Millisecond, Reconciler: c}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
