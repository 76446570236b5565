package services

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/events"
	"github.com/axellelanca/campaignshortener/internal/geo"
	"github.com/axellelanca/campaignshortener/internal/metrics"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/uaparser"
)

// RequestContext is everything the redirect path reads from the incoming request.
type RequestContext struct {
	IPAddress  string
	UserAgent  string
	Referrer   string
	SessionID  string
	ReceivedAt time.Time
}

// Redirect is the outcome of a successful resolution.
type Redirect struct {
	URL       string
	SessionID string
	// SessionMinted is true when the caller must hand the new session id to the client
	SessionMinted bool
	Campaign      *models.Campaign
	// Recorded is false when the click could not be stored and the policy let the redirect through
	Recorded bool
	EventID  uint
}

type CampaignLookup interface {
	Lookup(ctx context.Context, shortCode string) (*models.Campaign, error)
}

type AgentParser interface {
	Parse(userAgent string) uaparser.Agent
}

type ClickPublisher interface {
	PublishClick(ctx context.Context, click events.ClickRecorded) error
}

// Redirector resolves short codes and records one click per redirect.
type Redirector struct {
	campaigns  CampaignLookup
	clicks     repository.ClickRepository
	parser     AgentParser
	geo        geo.Resolver
	publisher  ClickPublisher
	failClosed bool
	logger     *zap.Logger
	now        func() time.Time
}

// NewRedirector wires the redirect path. publisher may be nil.
// With failClosed, a click that cannot be stored turns into a Transient error instead of a
// redirect.
func NewRedirector(campaigns CampaignLookup, clicks repository.ClickRepository, parser AgentParser, resolver geo.Resolver, publisher ClickPublisher, failClosed bool, logger *zap.Logger) *Redirector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redirector{
		campaigns:  campaigns,
		clicks:     clicks,
		parser:     parser,
		geo:        resolver,
		publisher:  publisher,
		failClosed: failClosed,
		logger:     logger,
		now:        time.Now,
	}
}

// Resolve looks the campaign up, records the click and returns where to send the client.
// The click is committed before Resolve returns.
func (r *Redirector) Resolve(ctx context.Context, shortCode string, rc RequestContext) (*Redirect, error) {
	const op = "services.Resolve"

	campaign, err := r.campaigns.Lookup(ctx, shortCode)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.NotFound {
			metrics.RedirectsTotal.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	redirect := &Redirect{URL: campaign.OriginalURL, SessionID: rc.SessionID, Campaign: campaign}
	if redirect.SessionID == "" {
		redirect.SessionID = uuid.NewString()
		redirect.SessionMinted = true
	}

	receivedAt := rc.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}

	agent := r.parser.Parse(rc.UserAgent)
	if !agent.Parsed() {
		agent.DeviceType = uaparser.DeviceDesktop
		agent.Browser = "Chrome"
		agent.OS = uaparser.Unknown
	}
	loc := r.geo.Resolve(ctx, rc.IPAddress)

	event := &models.ClickEvent{
		ShortCode:      campaign.ShortCode,
		ClickedAt:      receivedAt.UTC(),
		IPAddress:      rc.IPAddress,
		UserAgent:      rc.UserAgent,
		Referrer:       rc.Referrer,
		Country:        loc.Country,
		State:          loc.State,
		City:           loc.City,
		ISP:            loc.ISP,
		DeviceType:     agent.DeviceType,
		Browser:        agent.Browser,
		BrowserVersion: agent.BrowserVersion,
		OS:             agent.OS,
		OSVersion:      agent.OSVersion,
		EventType:      models.EventTypeClick,
		SessionID:      redirect.SessionID,
		TimeOnPage:     0,
		IsBounce:       true,
		IsConversion:   false,
	}

	start := time.Now()
	err = r.clicks.RecordClick(ctx, event, 1)
	metrics.ClickRecordDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if apperrors.KindOf(err) == apperrors.NotFound {
			// Deleted between lookup and insert.
			metrics.RedirectsTotal.WithLabelValues("not_found").Inc()
			return nil, err
		}
		r.logger.Error("Failed to record click",
			zap.String("short_code", campaign.ShortCode),
			zap.Bool("fail_closed", r.failClosed),
			zap.Error(err))
		if r.failClosed {
			metrics.RedirectsTotal.WithLabelValues("rejected").Inc()
			return nil, apperrors.E(apperrors.Transient, op, err)
		}
		metrics.RedirectsTotal.WithLabelValues("record_failed").Inc()
		return redirect, nil
	}

	redirect.Recorded = true
	redirect.EventID = event.ID
	metrics.RedirectsTotal.WithLabelValues("redirected").Inc()
	r.publish(ctx, campaign, event)
	return redirect, nil
}

func (r *Redirector) publish(ctx context.Context, campaign *models.Campaign, event *models.ClickEvent) {
	if r.publisher == nil {
		return
	}
	msg := events.ClickRecorded{
		EventID:      event.ID,
		ShortCode:    event.ShortCode,
		CampaignName: campaign.CampaignName,
		CampaignType: campaign.CampaignType,
		SessionID:    event.SessionID,
		IPAddress:    event.IPAddress,
		Referrer:     event.Referrer,
		DeviceType:   event.DeviceType,
		Browser:      event.Browser,
		OS:           event.OS,
		Country:      event.Country,
		State:        event.State,
		City:         event.City,
		UTMSource:    campaign.UTMSource,
		UTMMedium:    campaign.UTMMedium,
		UTMCampaign:  campaign.UTMCampaign,
		ClickedAt:    event.ClickedAt,
	}
	if err := r.publisher.PublishClick(ctx, msg); err != nil {
		r.logger.Warn("Failed to publish click", zap.String("short_code", event.ShortCode), zap.Error(err))
	}
}

// ClientIP picks the first X-Forwarded-For hop, falling back to the peer address.
// An unparseable address yields "".
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
