// Package monitor runs the periodic maintenance pass: destination health checks, counter
// reconciliation, bloom filter re-warming and auth session cleanup.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/internal/metrics"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// CampaignSource lists the campaigns whose destinations get checked.
type CampaignSource interface {
	ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]models.Campaign, error)
}

type Reconciler interface {
	ReconcileUniqueVisitors(ctx context.Context) (int, error)
}

type FilterWarmer interface {
	WarmFilter(ctx context.Context) (int, error)
}

type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Options selects the pieces of a pass. Nil collaborators are skipped.
type Options struct {
	Interval     time.Duration
	CheckURLs    bool
	CheckTimeout time.Duration
	Reconciler   Reconciler
	Warmer       FilterWarmer
	Sessions     SessionPurger
}

// URLMonitor keeps the last known reachability of every active destination and logs changes.
type URLMonitor struct {
	campaigns  CampaignSource
	opts       Options
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	knownStates map[uint]bool
}

func NewURLMonitor(campaigns CampaignSource, opts Options, logger *zap.Logger) *URLMonitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLMonitor{
		campaigns:   campaigns,
		opts:        opts,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		knownStates: make(map[uint]bool),
	}
}

// Start runs a pass immediately, then on every tick until ctx is done.
func (m *URLMonitor) Start(ctx context.Context) {
	m.logger.Info("Starting monitor", zap.Duration("interval", m.opts.Interval))
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopped")
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs one maintenance pass. Each step logs its own failure and the pass continues.
func (m *URLMonitor) RunOnce(ctx context.Context) {
	if m.opts.Reconciler != nil {
		if fixed, err := m.opts.Reconciler.ReconcileUniqueVisitors(ctx); err != nil {
			m.logger.Error("Unique visitor reconciliation failed", zap.Error(err))
		} else if fixed > 0 {
			m.logger.Info("Reconciled unique visitors", zap.Int("campaigns", fixed))
		}
	}
	if m.opts.Warmer != nil {
		if _, err := m.opts.Warmer.WarmFilter(ctx); err != nil {
			m.logger.Error("Bloom filter re-warm failed", zap.Error(err))
		}
	}
	if m.opts.Sessions != nil {
		if purged, err := m.opts.Sessions.PurgeExpiredSessions(ctx); err != nil {
			m.logger.Error("Expired session purge failed", zap.Error(err))
		} else if purged > 0 {
			m.logger.Info("Purged expired sessions", zap.Int64("sessions", purged))
		}
	}
	if m.opts.CheckURLs {
		m.checkURLs(ctx)
	}
}

func (m *URLMonitor) checkURLs(ctx context.Context) {
	campaigns, err := m.campaigns.ListCampaigns(ctx, repository.CampaignFilter{Status: "active"})
	if err != nil {
		m.logger.Error("Failed to list campaigns for monitoring", zap.Error(err))
		return
	}

	unreachable := 0
	for _, c := range campaigns {
		if ctx.Err() != nil {
			return
		}
		current := m.isReachable(ctx, c.OriginalURL)
		if !current {
			unreachable++
		}

		m.mu.Lock()
		previous, seen := m.knownStates[c.ID]
		m.knownStates[c.ID] = current
		m.mu.Unlock()

		if !seen {
			m.logger.Debug("Initial destination state",
				zap.String("short_code", c.ShortCode),
				zap.String("url", c.OriginalURL),
				zap.String("state", formatState(current)))
			continue
		}
		if current != previous {
			m.logger.Warn("Destination state changed",
				zap.String("short_code", c.ShortCode),
				zap.String("campaign", c.CampaignName),
				zap.String("url", c.OriginalURL),
				zap.String("from", formatState(previous)),
				zap.String("to", formatState(current)))
		}
	}
	metrics.UnreachableDestinations.Set(float64(unreachable))
}

// State returns the last known reachability of a campaign.
func (m *URLMonitor) State(id uint) (reachable, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reachable, known = m.knownStates[id]
	return reachable, known
}

// isReachable sends a HEAD request; 2xx and 3xx count as reachable.
func (m *URLMonitor) isReachable(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, m.opts.CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		m.logger.Debug("Invalid destination URL", zap.String("url", url), zap.Error(err))
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Debug("Destination unreachable", zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func formatState(reachable bool) string {
	if reachable {
		return "REACHABLE"
	}
	return "UNREACHABLE"
}
