package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/testutil"
)

func seedAnalytics(t *testing.T) (*repository.GormAnalyticsRepository, time.Time) {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewDB(t)
	campaigns := repository.NewCampaignRepository(db)
	clicks := repository.NewClickRepository(db)

	_, err := campaigns.CreateCampaign(ctx, newCampaign("Alpha"), testutil.SequenceGenerator("ALPHA1"))
	require.NoError(t, err)
	_, err = campaigns.CreateCampaign(ctx, newCampaign("Beta"), testutil.SequenceGenerator("BETA01"))
	require.NoError(t, err)

	base := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	rows := []struct {
		code, ip, state, device string
		offset                  time.Duration
		conversion              bool
	}{
		{"ALPHA1", "1.1.1.1", "Maharashtra", "Mobile", 0, true},
		{"ALPHA1", "1.1.1.1", "Maharashtra", "Mobile", time.Hour, false},
		{"ALPHA1", "2.2.2.2", "Karnataka", "Desktop", 24 * time.Hour, false},
		{"BETA01", "3.3.3.3", "Karnataka", "Desktop", 48 * time.Hour, false},
	}
	for _, r := range rows {
		ev := click(r.code, r.ip, base.Add(r.offset))
		ev.State = r.state
		ev.DeviceType = r.device
		ev.IsConversion = r.conversion
		require.NoError(t, clicks.RecordClick(ctx, ev, 1))
	}
	return repository.NewAnalyticsRepository(db), base
}

func TestAnalytics_TotalsRespectFilter(t *testing.T) {
	ctx := context.Background()
	repo, base := seedAnalytics(t)

	all, err := repo.Totals(ctx, repository.AnalyticsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, all.TotalClicks)
	assert.EqualValues(t, 3, all.UniqueVisitors)
	assert.EqualValues(t, 1, all.Conversions)
	assert.EqualValues(t, 4, all.Bounces)

	end := base.Add(24 * time.Hour)
	firstDay, err := repo.Totals(ctx, repository.AnalyticsFilter{Start: &base, End: &end})
	require.NoError(t, err)
	assert.EqualValues(t, 2, firstDay.TotalClicks)
	assert.EqualValues(t, 1, firstDay.UniqueVisitors)

	karnataka, err := repo.Totals(ctx, repository.AnalyticsFilter{States: []string{"Karnataka"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, karnataka.TotalClicks)

	beta, err := repo.Totals(ctx, repository.AnalyticsFilter{Campaigns: []string{"Beta"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, beta.TotalClicks)
}

func TestAnalytics_EmptyScope(t *testing.T) {
	ctx := context.Background()
	repo, _ := seedAnalytics(t)

	none, err := repo.Totals(ctx, repository.AnalyticsFilter{Campaigns: []string{"Missing"}})
	require.NoError(t, err)
	assert.Zero(t, none.TotalClicks)

	buckets, err := repo.Breakdown(ctx, repository.AnalyticsFilter{Campaigns: []string{"Missing"}}, repository.DimensionDevice)
	require.NoError(t, err)
	assert.NotNil(t, buckets)
	assert.Empty(t, buckets)
}

func TestAnalytics_Breakdown(t *testing.T) {
	ctx := context.Background()
	repo, _ := seedAnalytics(t)

	buckets, err := repo.Breakdown(ctx, repository.AnalyticsFilter{}, repository.DimensionState)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	// Equal click counts fall back to key order.
	assert.Equal(t, repository.Bucket{Key: "Karnataka", Clicks: 2, Visitors: 2}, buckets[0])
	assert.Equal(t, repository.Bucket{Key: "Maharashtra", Clicks: 2, Visitors: 1}, buckets[1])

	byCampaign, err := repo.Breakdown(ctx, repository.AnalyticsFilter{}, repository.DimensionCampaign)
	require.NoError(t, err)
	require.Len(t, byCampaign, 2)
	assert.Equal(t, "Alpha", byCampaign[0].Key)

	_, err = repo.Breakdown(ctx, repository.AnalyticsFilter{}, repository.Dimension("password"))
	assert.Error(t, err)
}

func TestAnalytics_BucketVisitors(t *testing.T) {
	ctx := context.Background()
	repo, _ := seedAnalytics(t)

	pairs, err := repo.BucketVisitors(ctx, repository.AnalyticsFilter{}, repository.DimensionState)
	require.NoError(t, err)
	assert.ElementsMatch(t, []repository.BucketVisitor{
		{Key: "Maharashtra", IPAddress: "1.1.1.1"},
		{Key: "Karnataka", IPAddress: "2.2.2.2"},
		{Key: "Karnataka", IPAddress: "3.3.3.3"},
	}, pairs)
}

func TestAnalytics_RecentAndClickTimes(t *testing.T) {
	ctx := context.Background()
	repo, base := seedAnalytics(t)

	recent, err := repo.Recent(ctx, repository.AnalyticsFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Beta", recent[0].CampaignName)
	assert.True(t, recent[0].ClickedAt.Equal(base.Add(48*time.Hour)))

	times, err := repo.ClickTimes(ctx, repository.AnalyticsFilter{Campaigns: []string{"Alpha"}})
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.True(t, times[0].Equal(base))
}

func TestAnalytics_CampaignRowsAndCounts(t *testing.T) {
	ctx := context.Background()
	repo, base := seedAnalytics(t)

	rows, err := repo.CampaignRows(ctx, repository.AnalyticsFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alpha", rows[0].CampaignName)
	assert.EqualValues(t, 3, rows[0].TotalClicks)
	assert.EqualValues(t, 2, rows[0].UniqueVisitors)
	assert.EqualValues(t, 1, rows[0].Conversions)

	total, active, err := repo.CampaignCounts(ctx, base.Add(36*time.Hour), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.EqualValues(t, 1, active)

	top, err := repo.TopCampaigns(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Alpha", top[0].CampaignName)
	assert.IsType(t, models.Campaign{}, top[0])
}

func TestAnalytics_OrganizationScope(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	campaigns := repository.NewCampaignRepository(db)
	clicks := repository.NewClickRepository(db)
	repo := repository.NewAnalyticsRepository(db)

	acme, globex := uint(1), uint(2)
	mine := newCampaign("Mine")
	mine.OrganizationID = &acme
	_, err := campaigns.CreateCampaign(ctx, mine, testutil.SequenceGenerator("MINE01"))
	require.NoError(t, err)
	theirs := newCampaign("Theirs")
	theirs.OrganizationID = &globex
	_, err = campaigns.CreateCampaign(ctx, theirs, testutil.SequenceGenerator("THEIR1"))
	require.NoError(t, err)

	at := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, clicks.RecordClick(ctx, click("MINE01", "1.1.1.1", at), 1))
	require.NoError(t, clicks.RecordClick(ctx, click("THEIR1", "2.2.2.2", at), 1))
	require.NoError(t, clicks.RecordClick(ctx, click("THEIR1", "3.3.3.3", at), 1))

	totals, err := repo.Totals(ctx, repository.AnalyticsFilter{OrganizationID: &acme})
	require.NoError(t, err)
	assert.EqualValues(t, 1, totals.TotalClicks)

	totals, err = repo.Totals(ctx, repository.AnalyticsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, totals.TotalClicks)

	total, _, err := repo.CampaignCounts(ctx, at, &globex)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	top, err := repo.TopCampaigns(ctx, 5, &acme)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Mine", top[0].CampaignName)
}
