package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/cmd"
	"github.com/axellelanca/campaignshortener/internal/api"
	"github.com/axellelanca/campaignshortener/internal/cache"
	"github.com/axellelanca/campaignshortener/internal/config"
	"github.com/axellelanca/campaignshortener/internal/events"
	"github.com/axellelanca/campaignshortener/internal/geo"
	"github.com/axellelanca/campaignshortener/internal/middleware"
	"github.com/axellelanca/campaignshortener/internal/monitor"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/services"
	"github.com/axellelanca/campaignshortener/internal/uaparser"
	"github.com/axellelanca/campaignshortener/internal/workers"
)

// RunServerCmd starts the HTTP server and the background processes.
var RunServerCmd = &cobra.Command{
	Use:   "run-server",
	Short: "Starts the redirect and dashboard API server with its background workers.",
	Long: `Opens the database, applies migrations, warms the short code filter, starts the click
bus consumers, the analytics sink workers and the monitor, then serves HTTP until SIGINT or
SIGTERM.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		logger, err := cmd.NewLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return run(cmd.Cfg, logger)
	},
}

func init() {
	cmd.RootCmd.AddCommand(RunServerCmd)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, closeDB, err := cmd.OpenDB()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeDB()
	if err := repository.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	campaignRepo := repository.NewCampaignRepository(db)
	clickRepo := repository.NewClickRepository(db)
	journeyRepo := repository.NewJourneyRepository(db)
	userRepo := repository.NewUserRepository(db)
	logger.Info("Repositories initialized", zap.String("driver", cfg.Database.Driver))

	var campaignCache cache.CampaignCache = cache.NoopCache{}
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL())
		if err != nil {
			logger.Warn("Redis unavailable, running without campaign cache", zap.Error(err))
		} else {
			defer redisCache.Close()
			campaignCache = redisCache
		}
	}
	filter := cache.NewCodeFilter(cfg.Cache.BloomCapacity, cfg.Cache.BloomFPRate)

	registry := services.NewCampaignService(campaignRepo, clickRepo, campaignCache, filter, cfg.Server.BaseURL, logger)
	warmed, err := registry.WarmFilter(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm short code filter: %w", err)
	}
	logger.Info("Short code filter warmed", zap.Int("codes", warmed))

	var provider geo.Provider
	if cfg.Geo.Enabled {
		provider = geo.NewIPAPIProvider(cfg.Geo.ProviderURL, cfg.Geo.Timeout())
	}
	geoSvc := geo.NewService(provider, geo.Options{Timeout: cfg.Geo.Timeout(), MemoSize: cfg.Geo.MemoSize}, logger)

	bus := events.NewBus(cfg.Analytics.BufferSize, logger)
	sinkPool := workers.StartSinkWorkers(cfg.Analytics.WorkerCount, cfg.Analytics.BufferSize,
		events.NewSink(cfg.Sink), time.Duration(cfg.Sink.TimeoutSeconds)*time.Second, logger)

	tracker := services.NewJourneyTracker(journeyRepo, clickRepo, sinkPool, logger)
	if err := bus.SubscribeClicks(ctx, "sink", sinkPool.ForwardClick); err != nil {
		return err
	}
	if err := bus.SubscribeClicks(ctx, "journeys", tracker.HandleClick); err != nil {
		return err
	}

	redirector := services.NewRedirector(registry, clickRepo, uaparser.New(), geoSvc, bus, cfg.Redirect.FailClosed, logger)
	aggregator := services.NewAggregator(repository.NewAnalyticsRepository(db), journeyRepo, campaignRepo, logger)
	auth := services.NewAuthService(userRepo, time.Duration(cfg.Auth.SessionTTLHours)*time.Hour, cfg.Auth.BcryptCost, logger)
	logger.Info("Services initialized")

	urlMonitor := monitor.NewURLMonitor(campaignRepo, monitor.Options{
		Interval:   time.Duration(cfg.Monitor.IntervalMinutes) * time.Minute,
		CheckURLs:  cfg.Monitor.CheckURLs,
		Reconciler: campaignRepo,
		Warmer:     registry,
		Sessions:   auth,
	}, logger)
	go urlMonitor.Start(ctx)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(ctx, middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.Burst,
		})
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(logger), middleware.Recovery(logger), middleware.Metrics())
	api.SetupRoutes(router, api.Deps{
		Campaigns:   registry,
		Redirector:  redirector,
		Aggregator:  aggregator,
		Journeys:    tracker,
		Auth:        auth,
		RateLimiter: limiter,
		DB:          sqlDB,
		Settings: api.Settings{
			DashboardURL:      cfg.Server.DashboardURL,
			SessionCookie:     cfg.Redirect.SessionCookie,
			SessionTTL:        time.Duration(cfg.Redirect.SessionTTLMinutes) * time.Minute,
			SecureCookies:     isHTTPS(cfg.Server.BaseURL),
			DefaultWindowDays: cfg.Analytics.DefaultWindowDays,
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr), zap.String("base_url", cfg.Server.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	timeout := time.Duration(cfg.Server.ShutdownSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown did not complete", zap.Error(err))
	}

	// Close the bus before the pool so no subscriber forwards into a stopped queue.
	if err := bus.Close(); err != nil {
		logger.Warn("Failed to close click bus", zap.Error(err))
	}
	sinkPool.Stop()
	logger.Info("Server stopped")
	return nil
}

func isHTTPS(baseURL string) bool {
	return strings.HasPrefix(strings.ToLower(baseURL), "https://")
}
