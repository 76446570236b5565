package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/events"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// Anomaly types.
const (
	AnomalyTimeGap      = "time_gap"
	AnomalyDeviceSwitch = "device_switch"
)

// MaxEventGap is the longest pause between two events before it counts as an anomaly.
const MaxEventGap = 30 * time.Minute

var eventWeights = map[string]float64{
	models.JourneyPageView:      1,
	models.JourneyAppEngagement: 2,
	models.JourneyConversion:    5,
}

var conversionIndicators = map[string]bool{
	models.JourneyAppEngagement: true,
	models.JourneyDeepLink:      true,
}

// UserData describes the visitor starting a journey.
type UserData struct {
	SessionID    string         `json:"session_id"`
	Device       string         `json:"device"`
	Location     string         `json:"location"`
	CampaignData map[string]any `json:"campaign_data"`
}

type JourneySummary struct {
	SessionID          string                `json:"session_id"`
	StartTime          time.Time             `json:"start_time"`
	EndTime            time.Time             `json:"end_time"`
	DurationSeconds    float64               `json:"duration_seconds"`
	TotalEvents        int                   `json:"total_events"`
	Events             []models.JourneyEvent `json:"events"`
	ConversionAchieved bool                  `json:"conversion_achieved"`
}

type Anomaly struct {
	Type       string    `json:"type"`
	At         time.Time `json:"at"`
	GapSeconds float64   `json:"gap_seconds,omitempty"`
	Devices    []string  `json:"devices,omitempty"`
}

type JourneyMetrics struct {
	TotalEvents           int     `json:"total_events"`
	PageViews             int     `json:"page_views"`
	DurationSeconds       float64 `json:"duration_seconds"`
	EngagementScore       float64 `json:"engagement_score"`
	ConversionProbability float64 `json:"conversion_probability"`
	Converted             bool    `json:"converted"`
}

// SessionClicks is the part of the click store the tracker updates.
type SessionClicks interface {
	UpdateSessionEngagement(ctx context.Context, sessionID string, e repository.SessionEngagement) (int64, error)
}

// Forwarder hands events to the analytics sink without blocking.
type Forwarder interface {
	Forward(clientID string, evs ...events.Event) bool
}

// JourneyTracker stitches events into per-session journeys.
type JourneyTracker struct {
	journeys  repository.JourneyRepository
	clicks    SessionClicks
	forwarder Forwarder
	logger    *zap.Logger
	now       func() time.Time
}

// NewJourneyTracker creates the tracker. forwarder may be nil.
func NewJourneyTracker(journeys repository.JourneyRepository, clicks SessionClicks, forwarder Forwarder, logger *zap.Logger) *JourneyTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JourneyTracker{
		journeys:  journeys,
		clicks:    clicks,
		forwarder: forwarder,
		logger:    logger,
		now:       time.Now,
	}
}

// StartJourney records the initial link_click of a session and returns its id.
// A session id in data is kept; otherwise a new one is minted.
func (t *JourneyTracker) StartJourney(ctx context.Context, shortCode string, data UserData) (string, error) {
	const op = "services.StartJourney"

	sessionID := strings.TrimSpace(data.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	campaignData, err := encodeParams(data.CampaignData)
	if err != nil {
		return "", apperrors.E(apperrors.Validation, op, err)
	}

	event := &models.JourneyEvent{
		EventID:      uuid.NewString(),
		SessionID:    sessionID,
		ShortCode:    shortCode,
		EventType:    models.JourneyLinkClick,
		EventName:    models.JourneyLinkClick,
		Timestamp:    t.now().UTC(),
		Device:       data.Device,
		Location:     data.Location,
		CampaignData: campaignData,
	}
	if err := t.journeys.AppendEvent(ctx, event); err != nil {
		return "", err
	}
	if err := t.refresh(ctx, sessionID); err != nil {
		t.logger.Warn("Failed to refresh engagement", zap.String("session_id", sessionID), zap.Error(err))
	}
	return sessionID, nil
}

// TrackEvent appends an event to an existing session, linked to the session's last event.
func (t *JourneyTracker) TrackEvent(ctx context.Context, sessionID, eventType, name string, params map[string]any) (*models.JourneyEvent, error) {
	return t.track(ctx, sessionID, eventType, name, params, true)
}

// track appends the event; clicks arriving from the bus are already mirrored to the sink.
func (t *JourneyTracker) track(ctx context.Context, sessionID, eventType, name string, params map[string]any, forward bool) (*models.JourneyEvent, error) {
	const op = "services.TrackEvent"

	if !models.IsJourneyEventType(eventType) {
		return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrInvalidEventType)
	}
	last, err := t.journeys.LastEvent(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, apperrors.E(apperrors.NotFound, op, apperrors.ErrSessionNotFound)
	}
	custom, err := encodeParams(params)
	if err != nil {
		return nil, apperrors.E(apperrors.Validation, op, err)
	}
	if name == "" {
		name = eventType
	}

	device := last.Device
	if d, ok := params["device"].(string); ok && d != "" {
		device = d
	}
	previous := last.EventID
	event := &models.JourneyEvent{
		EventID:          uuid.NewString(),
		SessionID:        sessionID,
		ShortCode:        last.ShortCode,
		EventType:        eventType,
		EventName:        name,
		Timestamp:        t.now().UTC(),
		Device:           device,
		Location:         last.Location,
		CustomParameters: custom,
		PreviousEventID:  &previous,
	}
	if err := t.journeys.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	if err := t.refresh(ctx, sessionID); err != nil {
		t.logger.Warn("Failed to refresh engagement", zap.String("session_id", sessionID), zap.Error(err))
	}
	if forward {
		t.forward(event, params)
	}
	return event, nil
}

// HandleClick is the bus handler that opens or extends a journey for every recorded click.
// Failures are logged and swallowed.
func (t *JourneyTracker) HandleClick(ctx context.Context, click events.ClickRecorded) error {
	if click.SessionID == "" {
		return nil
	}
	last, err := t.journeys.LastEvent(ctx, click.SessionID)
	if err != nil {
		t.logger.Warn("Failed to load journey", zap.String("session_id", click.SessionID), zap.Error(err))
		return nil
	}
	if last != nil {
		params := map[string]any{"device": click.DeviceType}
		if _, err := t.track(ctx, click.SessionID, models.JourneyLinkClick, click.ShortCode, params, false); err != nil {
			t.logger.Warn("Failed to extend journey", zap.String("session_id", click.SessionID), zap.Error(err))
		}
		return nil
	}

	_, err = t.StartJourney(ctx, click.ShortCode, UserData{
		SessionID: click.SessionID,
		Device:    click.DeviceType,
		Location:  joinLocation(click.City, click.State, click.Country),
		CampaignData: map[string]any{
			"campaign_name": click.CampaignName,
			"campaign_type": click.CampaignType,
			"utm_source":    click.UTMSource,
			"utm_medium":    click.UTMMedium,
			"utm_campaign":  click.UTMCampaign,
			"referrer":      click.Referrer,
		},
	})
	if err != nil {
		t.logger.Warn("Failed to start journey", zap.String("session_id", click.SessionID), zap.Error(err))
	}
	return nil
}

func (t *JourneyTracker) JourneySummary(ctx context.Context, sessionID string) (*JourneySummary, error) {
	evs, err := t.sessionEvents(ctx, sessionID, "services.JourneySummary")
	if err != nil {
		return nil, err
	}
	first, last := evs[0].Timestamp, evs[len(evs)-1].Timestamp
	summary := &JourneySummary{
		SessionID:       sessionID,
		StartTime:       first,
		EndTime:         last,
		DurationSeconds: last.Sub(first).Seconds(),
		TotalEvents:     len(evs),
		Events:          evs,
	}
	for _, e := range evs {
		if e.EventType == models.JourneyConversion {
			summary.ConversionAchieved = true
			break
		}
	}
	return summary, nil
}

// FunnelProgression returns the last stage the session reached in order, "" when it never
// reached the first one.
func (t *JourneyTracker) FunnelProgression(ctx context.Context, sessionID string, funnel []string) (string, error) {
	const op = "services.FunnelProgression"
	if len(funnel) == 0 {
		funnel = DefaultFunnel
	}
	for _, s := range funnel {
		if !models.IsJourneyEventType(s) {
			return "", apperrors.E(apperrors.Validation, op, apperrors.ErrInvalidEventType)
		}
	}
	evs, err := t.sessionEvents(ctx, sessionID, op)
	if err != nil {
		return "", err
	}
	reached := funnelReached(evs, funnel)
	if reached == 0 {
		return "", nil
	}
	return funnel[reached-1], nil
}

func (t *JourneyTracker) Anomalies(ctx context.Context, sessionID string) ([]Anomaly, error) {
	evs, err := t.sessionEvents(ctx, sessionID, "services.Anomalies")
	if err != nil {
		return nil, err
	}
	return detectAnomalies(evs), nil
}

func (t *JourneyTracker) Metrics(ctx context.Context, sessionID string) (*JourneyMetrics, error) {
	evs, err := t.sessionEvents(ctx, sessionID, "services.Metrics")
	if err != nil {
		return nil, err
	}
	m := computeMetrics(evs)
	return &m, nil
}

// Recommendations turns a session's metrics and anomalies into hints for the campaign owner.
func (t *JourneyTracker) Recommendations(ctx context.Context, sessionID string) ([]string, error) {
	evs, err := t.sessionEvents(ctx, sessionID, "services.Recommendations")
	if err != nil {
		return nil, err
	}
	m := computeMetrics(evs)
	anomalies := detectAnomalies(evs)

	recs := []string{}
	if m.PageViews == 0 {
		recs = append(recs, "No page views recorded after the click: check that the landing page sends tracking events")
	}
	if !m.Converted && m.ConversionProbability < 30 {
		recs = append(recs, "Low conversion likelihood: add a clearer call to action or a deep link into the app")
	}
	for _, a := range anomalies {
		switch a.Type {
		case AnomalyTimeGap:
			recs = append(recs, "Long pauses between interactions: consider a re-engagement reminder")
		case AnomalyDeviceSwitch:
			recs = append(recs, "Visitor switched devices: make sure links and sessions carry over between devices")
		}
	}
	if m.Converted {
		recs = append(recs, "Journey converted: reuse this path as a reference funnel")
	}
	return dedupe(recs), nil
}

func (t *JourneyTracker) sessionEvents(ctx context.Context, sessionID, op string) ([]models.JourneyEvent, error) {
	evs, err := t.journeys.SessionEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, apperrors.E(apperrors.NotFound, op, apperrors.ErrSessionNotFound)
	}
	return evs, nil
}

// refresh rebuilds the session's engagement rollup and pushes it onto the session's clicks.
func (t *JourneyTracker) refresh(ctx context.Context, sessionID string) error {
	evs, err := t.journeys.SessionEvents(ctx, sessionID)
	if err != nil || len(evs) == 0 {
		return err
	}
	m := computeMetrics(evs)
	last := evs[len(evs)-1]

	err = t.journeys.UpsertEngagement(ctx, &models.EngagementMetric{
		SessionID:       sessionID,
		ShortCode:       evs[0].ShortCode,
		PageViews:       m.PageViews,
		TimeSpent:       int(m.DurationSeconds),
		ActionsTaken:    len(evs) - 1,
		LastInteraction: last.Timestamp,
		IsConverted:     m.Converted,
		EngagementScore: m.EngagementScore,
	})
	if err != nil {
		return err
	}

	if t.clicks == nil {
		return nil
	}
	_, err = t.clicks.UpdateSessionEngagement(ctx, sessionID, repository.SessionEngagement{
		TimeOnPage:      int(m.DurationSeconds),
		Engaged:         len(evs) > 1,
		Converted:       m.Converted,
		EngagementScore: m.EngagementScore,
	})
	return err
}

func (t *JourneyTracker) forward(event *models.JourneyEvent, params map[string]any) {
	if t.forwarder == nil {
		return
	}
	p := make(map[string]any, len(params)+3)
	for k, v := range params {
		p[k] = v
	}
	p["event_name"] = event.EventName
	p["session_id"] = event.SessionID
	p["short_code"] = event.ShortCode
	t.forwarder.Forward(event.SessionID, events.Event{Name: event.EventType, Params: p})
}

// funnelReached walks the events in order and returns how many leading stages were matched.
func funnelReached(evs []models.JourneyEvent, stages []string) int {
	reached := 0
	for _, e := range evs {
		if reached == len(stages) {
			break
		}
		if e.EventType == stages[reached] {
			reached++
		}
	}
	return reached
}

func computeMetrics(evs []models.JourneyEvent) JourneyMetrics {
	m := JourneyMetrics{TotalEvents: len(evs)}
	if len(evs) == 0 {
		return m
	}
	indicators := 0
	for _, e := range evs {
		m.EngagementScore += eventWeights[e.EventType]
		if conversionIndicators[e.EventType] {
			indicators++
		}
		switch e.EventType {
		case models.JourneyPageView:
			m.PageViews++
		case models.JourneyConversion:
			m.Converted = true
		}
	}
	m.DurationSeconds = evs[len(evs)-1].Timestamp.Sub(evs[0].Timestamp).Seconds()
	m.ConversionProbability = round2(min(100, float64(indicators)*100/float64(len(evs))))
	return m
}

func detectAnomalies(evs []models.JourneyEvent) []Anomaly {
	out := []Anomaly{}
	for i := 1; i < len(evs); i++ {
		gap := evs[i].Timestamp.Sub(evs[i-1].Timestamp)
		if gap > MaxEventGap {
			out = append(out, Anomaly{Type: AnomalyTimeGap, At: evs[i].Timestamp, GapSeconds: gap.Seconds()})
		}
	}

	var devices []string
	seen := map[string]bool{}
	for _, e := range evs {
		if e.Device == "" || seen[e.Device] {
			continue
		}
		seen[e.Device] = true
		devices = append(devices, e.Device)
	}
	if len(devices) > 1 {
		out = append(out, Anomaly{Type: AnomalyDeviceSwitch, At: evs[len(evs)-1].Timestamp, Devices: devices})
	}
	return out
}

func encodeParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode event parameters: %w", err)
	}
	return string(b), nil
}

func joinLocation(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
