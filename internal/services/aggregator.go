package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// DateLayout is the calendar-day format used for filters and daily buckets.
const DateLayout = "2006-01-02"

const unknownValue = "Unknown"

// CampaignStat is one campaign's line in a summary or performance report.
type CampaignStat struct {
	Name           string  `json:"name"`
	ShortCode      string  `json:"short_code"`
	TotalClicks    int64   `json:"total_clicks"`
	UniqueVisitors int64   `json:"unique_visitors"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	AvgTimeOnPage  float64 `json:"avg_time_on_page"`
	BounceRate     float64 `json:"bounce_rate"`
}

type Summary struct {
	TotalClicks    int64            `json:"total_clicks"`
	UniqueVisitors int64            `json:"unique_visitors"`
	ActiveDays     int              `json:"active_days"`
	EngagementRate float64          `json:"engagement_rate"`
	DailyStats     map[string]int64 `json:"daily_stats"`
	StateStats     map[string]int64 `json:"state_stats"`
	CampaignStats  []CampaignStat   `json:"campaign_stats"`
}

type TopCampaign struct {
	Name           string `json:"name"`
	ShortCode      string `json:"short_code"`
	TotalClicks    int64  `json:"total_clicks"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// DashboardStats is the landing view: a summary over the window plus campaign-wide counters.
type DashboardStats struct {
	Summary
	WindowDays      int              `json:"window_days"`
	TotalCampaigns  int64            `json:"total_campaigns"`
	ActiveCampaigns int64            `json:"active_campaigns"`
	AvgTime         float64          `json:"avg_time"`
	BounceRate      float64          `json:"bounce_rate"`
	ConversionRate  float64          `json:"conversion_rate"`
	DeviceStats     map[string]int64 `json:"device_stats"`
	BrowserStats    map[string]int64 `json:"browser_stats"`
	TrafficSources  map[string]int64 `json:"traffic_sources"`
	TopCampaigns    []TopCampaign    `json:"top_campaigns"`
}

type TrafficSources struct {
	Sources map[string]int64 `json:"sources"`
	Total   int64            `json:"total"`
}

type BreakdownRow struct {
	Key            string  `json:"key"`
	Clicks         int64   `json:"clicks"`
	UniqueVisitors int64   `json:"unique_visitors"`
	Percentage     float64 `json:"percentage"`
}

type HourBucket struct {
	Hour   int   `json:"hour"`
	Clicks int64 `json:"clicks"`
}

// FunnelStage counts the sessions that reached a stage having passed every earlier one.
type FunnelStage struct {
	Stage    string  `json:"stage"`
	Sessions int     `json:"sessions"`
	Rate     float64 `json:"rate"`
}

// CampaignNames resolves campaign names and organization codes for the journey-based funnel.
type CampaignNames interface {
	GetCampaignByName(ctx context.Context, name string) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]models.Campaign, error)
}

// JourneyEvents is the slice of the journey store the aggregate funnel reads.
type JourneyEvents interface {
	EventsInRange(ctx context.Context, start, end *time.Time, shortCodes []string) ([]models.JourneyEvent, error)
}

// DefaultFunnel is used when a funnel request names no stages.
var DefaultFunnel = []string{models.JourneyLinkClick, models.JourneyPageView, models.JourneyConversion}

// Aggregator answers read-only analytics queries over the click stream.
// Daily and hourly buckets use the aggregator's location, the server's local zone by default.
type Aggregator struct {
	analytics repository.AnalyticsRepository
	journeys  JourneyEvents
	campaigns CampaignNames
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

func NewAggregator(analytics repository.AnalyticsRepository, journeys JourneyEvents, campaigns CampaignNames, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		analytics: analytics,
		journeys:  journeys,
		campaigns: campaigns,
		loc:       time.Local,
		now:       time.Now,
		logger:    logger,
	}
}

// WithLocation returns a copy of the aggregator bucketing days in loc.
func (a *Aggregator) WithLocation(loc *time.Location) *Aggregator {
	cp := *a
	cp.loc = loc
	return &cp
}

// NewFilter builds a filter from YYYY-MM-DD bounds in the aggregator's zone. Both bounds are
// inclusive calendar days; empty strings leave the side open.
func (a *Aggregator) NewFilter(startDate, endDate string, campaigns, states []string) (repository.AnalyticsFilter, error) {
	const op = "services.NewFilter"
	f := repository.AnalyticsFilter{Campaigns: compact(campaigns), States: compact(states)}
	if startDate != "" {
		start, err := time.ParseInLocation(DateLayout, startDate, a.loc)
		if err != nil {
			return f, apperrors.Validationf(op, "invalid start_date %q", startDate)
		}
		f.Start = &start
	}
	if endDate != "" {
		end, err := time.ParseInLocation(DateLayout, endDate, a.loc)
		if err != nil {
			return f, apperrors.Validationf(op, "invalid end_date %q", endDate)
		}
		end = end.AddDate(0, 0, 1)
		f.End = &end
	}
	if f.Start != nil && f.End != nil && !f.Start.Before(*f.End) {
		return f, apperrors.Validationf(op, "start_date must not be after end_date")
	}
	return f, nil
}

func (a *Aggregator) Summary(ctx context.Context, f repository.AnalyticsFilter) (*Summary, error) {
	totals, err := a.analytics.Totals(ctx, f)
	if err != nil {
		return nil, err
	}
	times, err := a.analytics.ClickTimes(ctx, f)
	if err != nil {
		return nil, err
	}
	states, err := a.analytics.Breakdown(ctx, f, repository.DimensionState)
	if err != nil {
		return nil, err
	}
	campaigns, err := a.CampaignPerformance(ctx, f)
	if err != nil {
		return nil, err
	}

	daily := make(map[string]int64)
	for _, t := range times {
		daily[t.In(a.loc).Format(DateLayout)]++
	}

	return &Summary{
		TotalClicks:    totals.TotalClicks,
		UniqueVisitors: totals.UniqueVisitors,
		ActiveDays:     len(daily),
		EngagementRate: rate(totals.UniqueVisitors, totals.TotalClicks),
		DailyStats:     daily,
		StateStats:     bucketMap(states),
		CampaignStats:  campaigns,
	}, nil
}

// DashboardStats summarizes the last windowDays days (30 when windowDays <= 0). A non-nil
// organizationID limits every figure to that organization's campaigns.
func (a *Aggregator) DashboardStats(ctx context.Context, windowDays int, organizationID *uint) (*DashboardStats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := a.now().AddDate(0, 0, -windowDays)
	f := repository.AnalyticsFilter{Start: &since, OrganizationID: organizationID}

	summary, err := a.Summary(ctx, f)
	if err != nil {
		return nil, err
	}
	totals, err := a.analytics.Totals(ctx, f)
	if err != nil {
		return nil, err
	}
	total, active, err := a.analytics.CampaignCounts(ctx, since, organizationID)
	if err != nil {
		return nil, err
	}
	devices, err := a.analytics.Breakdown(ctx, f, repository.DimensionDevice)
	if err != nil {
		return nil, err
	}
	browsers, err := a.analytics.Breakdown(ctx, f, repository.DimensionBrowser)
	if err != nil {
		return nil, err
	}
	sources, err := a.TrafficSources(ctx, f)
	if err != nil {
		return nil, err
	}
	top, err := a.analytics.TopCampaigns(ctx, 5, organizationID)
	if err != nil {
		return nil, err
	}

	topCampaigns := make([]TopCampaign, 0, len(top))
	for _, c := range top {
		topCampaigns = append(topCampaigns, TopCampaign{
			Name:           c.CampaignName,
			ShortCode:      c.ShortCode,
			TotalClicks:    c.TotalClicks,
			UniqueVisitors: c.UniqueVisitors,
		})
	}

	return &DashboardStats{
		Summary:         *summary,
		WindowDays:      windowDays,
		TotalCampaigns:  total,
		ActiveCampaigns: active,
		AvgTime:         round2(totals.AvgTimeOnPage),
		BounceRate:      rate(totals.Bounces, totals.TotalClicks),
		ConversionRate:  rate(totals.Conversions, totals.TotalClicks),
		DeviceStats:     bucketMap(devices),
		BrowserStats:    bucketMap(browsers),
		TrafficSources:  sources.Sources,
		TopCampaigns:    topCampaigns,
	}, nil
}

// TrafficSources classifies every referrer in scope. All sources are present, zero or not.
func (a *Aggregator) TrafficSources(ctx context.Context, f repository.AnalyticsFilter) (*TrafficSources, error) {
	buckets, err := a.analytics.Breakdown(ctx, f, repository.DimensionSource)
	if err != nil {
		return nil, err
	}
	out := &TrafficSources{Sources: make(map[string]int64, len(TrafficSourceOrder))}
	for _, s := range TrafficSourceOrder {
		out.Sources[s] = 0
	}
	for _, b := range buckets {
		out.Sources[ClassifyReferrer(b.Key)] += b.Clicks
		out.Total += b.Clicks
	}
	return out, nil
}

// Breakdown groups the scope by one dimension. Blank values are reported as "Unknown".
func (a *Aggregator) Breakdown(ctx context.Context, f repository.AnalyticsFilter, dim repository.Dimension) ([]BreakdownRow, error) {
	buckets, err := a.analytics.Breakdown(ctx, f, dim)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, b := range buckets {
		total += b.Clicks
	}

	rows := make([]BreakdownRow, 0, len(buckets))
	index := make(map[string]int, len(buckets))
	for _, b := range buckets {
		key := breakdownKey(dim, b.Key)
		if i, ok := index[key]; ok {
			rows[i].Clicks += b.Clicks
			continue
		}
		index[key] = len(rows)
		rows = append(rows, BreakdownRow{Key: key, Clicks: b.Clicks})
	}

	// Several stored values can fold into one row, so visitors are counted over distinct IPs per row.
	pairs, err := a.analytics.BucketVisitors(ctx, f, dim)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]map[string]struct{}, len(rows))
	for _, p := range pairs {
		key := breakdownKey(dim, p.Key)
		if seen[key] == nil {
			seen[key] = map[string]struct{}{}
		}
		seen[key][p.IPAddress] = struct{}{}
	}
	for i := range rows {
		rows[i].UniqueVisitors = int64(len(seen[rows[i].Key]))
		rows[i].Percentage = rate(rows[i].Clicks, total)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Clicks > rows[j].Clicks })
	return rows, nil
}

func breakdownKey(dim repository.Dimension, raw string) string {
	if dim == repository.DimensionSource {
		return ClassifyReferrer(raw)
	}
	if strings.TrimSpace(raw) == "" {
		return unknownValue
	}
	return raw
}

func (a *Aggregator) DeviceStats(ctx context.Context, f repository.AnalyticsFilter) ([]BreakdownRow, error) {
	return a.Breakdown(ctx, f, repository.DimensionDevice)
}

func (a *Aggregator) BrowserStats(ctx context.Context, f repository.AnalyticsFilter) ([]BreakdownRow, error) {
	return a.Breakdown(ctx, f, repository.DimensionBrowser)
}

func (a *Aggregator) OSStats(ctx context.Context, f repository.AnalyticsFilter) ([]BreakdownRow, error) {
	return a.Breakdown(ctx, f, repository.DimensionOS)
}

func (a *Aggregator) GeoStats(ctx context.Context, f repository.AnalyticsFilter) ([]BreakdownRow, error) {
	return a.Breakdown(ctx, f, repository.DimensionState)
}

func (a *Aggregator) CampaignPerformance(ctx context.Context, f repository.AnalyticsFilter) ([]CampaignStat, error) {
	rows, err := a.analytics.CampaignRows(ctx, f)
	if err != nil {
		return nil, err
	}
	stats := make([]CampaignStat, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, CampaignStat{
			Name:           r.CampaignName,
			ShortCode:      r.ShortCode,
			TotalClicks:    r.TotalClicks,
			UniqueVisitors: r.UniqueVisitors,
			Conversions:    r.Conversions,
			ConversionRate: rate(r.Conversions, r.TotalClicks),
			AvgTimeOnPage:  round2(r.AvgTimeOnPage),
			BounceRate:     rate(r.Bounces, r.TotalClicks),
		})
	}
	return stats, nil
}

// RecentActivities returns the latest events with blank device, browser and state backfilled.
func (a *Aggregator) RecentActivities(ctx context.Context, f repository.AnalyticsFilter, limit int) ([]repository.Activity, error) {
	rows, err := a.analytics.Recent(ctx, f, limit)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].DeviceType == "" {
			rows[i].DeviceType = "Desktop"
		}
		if rows[i].Browser == "" {
			rows[i].Browser = unknownValue
		}
		if rows[i].State == "" {
			rows[i].State = unknownValue
		}
	}
	return rows, nil
}

// HourlyDistribution always returns 24 buckets, hour 0 first.
func (a *Aggregator) HourlyDistribution(ctx context.Context, f repository.AnalyticsFilter) ([]HourBucket, error) {
	times, err := a.analytics.ClickTimes(ctx, f)
	if err != nil {
		return nil, err
	}
	hours := make([]HourBucket, 24)
	for h := range hours {
		hours[h].Hour = h
	}
	for _, t := range times {
		hours[t.In(a.loc).Hour()].Clicks++
	}
	return hours, nil
}

// Funnel counts sessions reaching each ordered stage. Campaign filters select sessions that
// touched one of the campaigns; state filters do not apply to journeys.
func (a *Aggregator) Funnel(ctx context.Context, f repository.AnalyticsFilter, stages []string) ([]FunnelStage, error) {
	const op = "services.Funnel"
	if len(stages) == 0 {
		stages = DefaultFunnel
	}
	for _, s := range stages {
		if !models.IsJourneyEventType(s) {
			return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrInvalidEventType)
		}
	}

	codes, err := a.funnelCodes(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]FunnelStage, len(stages))
	for i, s := range stages {
		out[i].Stage = s
	}
	if codes != nil && len(codes) == 0 {
		return out, nil
	}

	events, err := a.journeys.EventsInRange(ctx, f.Start, f.End, codes)
	if err != nil {
		return nil, err
	}

	bySession := make(map[string][]models.JourneyEvent)
	for _, e := range events {
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}
	for _, evs := range bySession {
		for i := 0; i < funnelReached(evs, stages); i++ {
			out[i].Sessions++
		}
	}
	for i := range out {
		out[i].Rate = rate(int64(out[i].Sessions), int64(len(bySession)))
	}
	return out, nil
}

// funnelCodes returns nil when the filter is restricted to neither campaigns nor an organization.
func (a *Aggregator) funnelCodes(ctx context.Context, f repository.AnalyticsFilter) ([]string, error) {
	if len(f.Campaigns) == 0 && len(f.ShortCodes) == 0 && f.OrganizationID == nil {
		return nil, nil
	}

	var allowed map[string]bool
	if f.OrganizationID != nil {
		owned, err := a.campaigns.ListCampaigns(ctx, repository.CampaignFilter{OrganizationID: f.OrganizationID})
		if err != nil {
			return nil, err
		}
		allowed = make(map[string]bool, len(owned))
		for _, c := range owned {
			allowed[c.ShortCode] = true
		}
		if len(f.Campaigns) == 0 && len(f.ShortCodes) == 0 {
			codes := make([]string, 0, len(owned))
			for _, c := range owned {
				codes = append(codes, c.ShortCode)
			}
			return codes, nil
		}
	}

	codes := []string{}
	keep := func(code string) {
		if allowed == nil || allowed[code] {
			codes = append(codes, code)
		}
	}
	for _, code := range f.ShortCodes {
		keep(code)
	}
	for _, name := range f.Campaigns {
		c, err := a.campaigns.GetCampaignByName(ctx, name)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.NotFound {
				continue
			}
			return nil, err
		}
		keep(c.ShortCode)
	}
	return codes, nil
}

func bucketMap(buckets []repository.Bucket) map[string]int64 {
	out := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		key := b.Key
		if strings.TrimSpace(key) == "" {
			key = unknownValue
		}
		out[key] += b.Clicks
	}
	return out
}

// rate is num/den as a percentage rounded to two decimals, 0 when den is 0.
func rate(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return round2(float64(num) * 100 / float64(den))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
