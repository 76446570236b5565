package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/axellelanca/campaignshortener/internal/config"
)

// DefaultSinkEndpoint is the GA4 measurement protocol collection endpoint.
const DefaultSinkEndpoint = "https://www.google-analytics.com/mp/collect"

// Event is one measurement protocol event.
type Event struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

type sinkPayload struct {
	ClientID string  `json:"client_id"`
	Events   []Event `json:"events"`
}

// Sink receives analytics events for an external vendor.
type Sink interface {
	Send(ctx context.Context, clientID string, events ...Event) error
	Enabled() bool
}

// NoopSink drops everything; used when credentials are absent.
type NoopSink struct{}

func (NoopSink) Send(context.Context, string, ...Event) error { return nil }
func (NoopSink) Enabled() bool                                { return false }

// MeasurementSink posts events to a GA4-style measurement protocol endpoint.
type MeasurementSink struct {
	client        *http.Client
	endpoint      string
	measurementID string
	apiSecret     string
}

// NewSink returns a MeasurementSink when both credentials are configured, a NoopSink otherwise.
func NewSink(cfg config.SinkConfig) Sink {
	if !cfg.Enabled() {
		return NoopSink{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultSinkEndpoint
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MeasurementSink{
		client:        &http.Client{Timeout: timeout},
		endpoint:      endpoint,
		measurementID: cfg.MeasurementID,
		apiSecret:     cfg.APISecret,
	}
}

func (s *MeasurementSink) Enabled() bool { return true }

func (s *MeasurementSink) Send(ctx context.Context, clientID string, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	body, err := json.Marshal(sinkPayload{ClientID: clientID, Events: events})
	if err != nil {
		return fmt.Errorf("failed to encode sink payload: %w", err)
	}

	q := url.Values{}
	q.Set("measurement_id", s.measurementID)
	q.Set("api_secret", s.apiSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned status %d", resp.StatusCode)
	}
	return nil
}

// ClickEvent converts a recorded click into the measurement event forwarded to the sink.
func ClickEvent(click ClickRecorded) Event {
	params := map[string]any{
		"short_code":    click.ShortCode,
		"campaign_name": click.CampaignName,
		"campaign_type": click.CampaignType,
		"device_type":   click.DeviceType,
		"browser":       click.Browser,
		"os":            click.OS,
		"country":       click.Country,
		"region":        click.State,
		"city":          click.City,
	}
	if click.UTMSource != "" {
		params["source"] = click.UTMSource
	}
	if click.UTMMedium != "" {
		params["medium"] = click.UTMMedium
	}
	if click.UTMCampaign != "" {
		params["campaign"] = click.UTMCampaign
	}
	return Event{Name: "link_click", Params: params}
}
