// Package metrics declares the Prometheus collectors shared by the HTTP layer and the click path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Redirect outcomes: redirected, not_found, record_failed, rejected
	RedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_redirects_total",
			Help: "Redirect requests by outcome",
		},
		[]string{"outcome"},
	)

	ClickRecordDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_click_record_duration_seconds",
			Help:    "Time spent in the click recording transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Geo lookups by source: memo, provider, fallback
	GeoLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geo_lookups_total",
			Help: "IP geolocation lookups by answering source",
		},
		[]string{"source"},
	)

	GeoBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geo_circuit_breaker_state",
			Help: "Geo provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Sink forwards by result: sent, failed, dropped
	SinkForwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_forwards_total",
			Help: "Events forwarded to the external analytics sink",
		},
		[]string{"result"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_cache_lookups_total",
			Help: "Campaign cache lookups by result: hit, miss, bloom_miss, error",
		},
		[]string{"result"},
	)

	// Destinations found unreachable by the last monitor pass
	UnreachableDestinations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaign_unreachable_destinations",
			Help: "Active campaigns whose destination failed the last health check",
		},
	)
)
