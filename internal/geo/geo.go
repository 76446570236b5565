// Package geo resolves client IPs to a coarse location. Resolution never fails: every error
// path ends in the deterministic fallback table.
package geo

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/internal/metrics"
)

// Location is the coarse geography stored on each click.
type Location struct {
	Country string `json:"country"`
	State   string `json:"state"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
}

// Provider is an upstream geolocation service.
type Provider interface {
	Lookup(ctx context.Context, ipAddress string) (*Location, error)
	Name() string
}

// Resolver is what the redirect path depends on.
type Resolver interface {
	Resolve(ctx context.Context, ipAddress string) Location
}

type Options struct {
	Timeout  time.Duration
	MemoSize int
	Fallback *FallbackTable
}

// Service resolves through the provider behind a circuit breaker and memoizes answers.
type Service struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[*Location]
	fallback *FallbackTable
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	memo     map[string]Location
	memoSize int
}

// NewService builds a resolver. A nil provider makes every lookup use the fallback table.
func NewService(provider Provider, opts Options, logger *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 1500 * time.Millisecond
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = 10000
	}
	if opts.Fallback == nil {
		opts.Fallback = DefaultFallback()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		provider: provider,
		fallback: opts.Fallback,
		timeout:  opts.Timeout,
		logger:   logger,
		memo:     make(map[string]Location),
		memoSize: opts.MemoSize,
	}
	s.breaker = gobreaker.NewCircuitBreaker[*Location](gobreaker.Settings{
		Name:        "geo-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Geo circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.GeoBreakerState.Set(stateValue(to))
		},
	})
	return s
}

// Resolve returns the location of ipAddress.
func (s *Service) Resolve(ctx context.Context, ipAddress string) Location {
	ipAddress = strings.TrimSpace(ipAddress)
	if s.provider == nil || !IsPublic(ipAddress) {
		metrics.GeoLookupsTotal.WithLabelValues("fallback").Inc()
		return s.fallback.Locate(ipAddress)
	}

	s.mu.RLock()
	loc, ok := s.memo[ipAddress]
	s.mu.RUnlock()
	if ok {
		metrics.GeoLookupsTotal.WithLabelValues("memo").Inc()
		return loc
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.breaker.Execute(func() (*Location, error) {
		return s.provider.Lookup(lookupCtx, ipAddress)
	})
	if err != nil || result == nil {
		s.logger.Debug("Geo lookup failed, using fallback",
			zap.String("provider", s.provider.Name()),
			zap.String("ip", ipAddress),
			zap.Error(err))
		metrics.GeoLookupsTotal.WithLabelValues("fallback").Inc()
		return s.fallback.Locate(ipAddress)
	}

	loc = fillUnknown(*result)
	s.remember(ipAddress, loc)
	metrics.GeoLookupsTotal.WithLabelValues("provider").Inc()
	return loc
}

func (s *Service) remember(ip string, loc Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.memo) >= s.memoSize {
		// A full memo starts over.
		s.memo = make(map[string]Location, s.memoSize)
	}
	s.memo[ip] = loc
}

// IsPublic reports whether ip is a routable address worth sending to a provider.
func IsPublic(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast() || parsed.IsMulticast())
}

func fillUnknown(loc Location) Location {
	if loc.Country == "" {
		loc.Country = "Unknown"
	}
	if loc.State == "" {
		loc.State = "Unknown"
	}
	if loc.City == "" {
		loc.City = "Unknown"
	}
	if loc.ISP == "" {
		loc.ISP = "Unknown"
	}
	return loc
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
