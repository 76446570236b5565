// Package api wires the gin routes: the public redirect and tracking endpoints, and the
// authenticated dashboard API under /api/v1.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/internal/middleware"
	"github.com/axellelanca/campaignshortener/internal/services"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Settings are the HTTP-facing knobs taken from configuration.
type Settings struct {
	DashboardURL      string
	SessionCookie     string
	SessionTTL        time.Duration
	SecureCookies     bool
	DefaultWindowDays int
}

// Deps groups everything the handlers need.
type Deps struct {
	Campaigns   *services.CampaignService
	Redirector  *services.Redirector
	Aggregator  *services.Aggregator
	Journeys    *services.JourneyTracker
	Auth        *services.AuthService
	RateLimiter *middleware.RateLimiter
	DB          Pinger
	Settings    Settings
	Logger      *zap.Logger
}

// SetupRoutes registers every route on router.
func SetupRoutes(router *gin.Engine, d Deps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Settings.SessionCookie == "" {
		d.Settings.SessionCookie = "session_id"
	}
	if d.Settings.SessionTTL <= 0 {
		d.Settings.SessionTTL = 30 * time.Minute
	}

	router.GET("/health", HealthCheckHandler(d.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := router.Group("/")
	if d.RateLimiter != nil {
		public.Use(d.RateLimiter.Middleware())
	}
	public.GET("/", RedirectHandler(d))
	public.POST("/api/v1/track", TrackHandler(d))

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", LoginHandler(d))

	authed := v1.Group("")
	authed.Use(middleware.RequireAuth(d.Auth))
	{
		authed.POST("/auth/logout", LogoutHandler(d))
		authed.GET("/auth/me", MeHandler())

		authed.POST("/campaigns", CreateCampaignHandler(d))
		authed.GET("/campaigns", ListCampaignsHandler(d))
		authed.GET("/campaigns/:code", GetCampaignHandler(d))
		authed.GET("/campaigns/:code/stats", GetCampaignStatsHandler(d))
		authed.PATCH("/campaigns/:code", UpdateCampaignHandler(d))
		authed.DELETE("/campaigns/:code", DeleteCampaignHandler(d))

		authed.GET("/analytics", SummaryHandler(d))
		authed.GET("/analytics/dashboard", DashboardHandler(d))
		authed.GET("/analytics/traffic-sources", TrafficSourcesHandler(d))
		authed.GET("/analytics/breakdown/:dimension", BreakdownHandler(d))
		authed.GET("/analytics/campaigns", CampaignPerformanceHandler(d))
		authed.GET("/analytics/recent", RecentActivitiesHandler(d))
		authed.GET("/analytics/hourly", HourlyHandler(d))
		authed.GET("/analytics/funnel", FunnelHandler(d))
		authed.GET("/analytics/export", ExportHandler(d))

		authed.POST("/journeys/:session/events", TrackJourneyEventHandler(d))
		authed.GET("/journeys/:session", JourneyHandler(d))
		authed.GET("/journeys/:session/funnel", JourneyFunnelHandler(d))
	}
}

// HealthCheckHandler answers 200 when the store is reachable, 503 otherwise.
func HealthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
