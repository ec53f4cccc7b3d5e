// Package main provides the entry point for the wa-oauth-gateway server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/api/middleware"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/config"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/gate"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/health"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/metrics"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/oauth"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/repository"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/session"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/settings"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := config.AutoLoadEnv("."); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))
	slog.SetDefault(logger)

	provider, err := settings.Load(cfg.GetSettingsFile())
	if err != nil {
		return err
	}

	policies, err := repository.NewFilePolicyRepository(cfg.GetPolicyFile())
	if err != nil {
		return err
	}
	go watchPolicyReloads(ctx, logger, policies, cfg.GetPolicyFile())

	var redisClient *redis.Client
	if cfg.GetRedisEnabled() {
		redisClient, err = connectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed to close redis client", slog.String("error", err.Error()))
			}
		}()
	}

	m := metrics.New()

	registry, err := oauth.NewRegistry(provider, clientFactory(ctx, cfg, logger, m, redisClient))
	if err != nil {
		return fmt.Errorf("failed to build oauth clients: %w", err)
	}

	store := session.NewStore(session.Options{
		SigningSecret: cfg.GetCookieSigningSecret(),
		Domain:        cfg.GetCookieDomain(),
		Secure:        cfg.GetCookieSecure(),
	})
	logger.Info("cookie store ready", slog.Bool("signed", store.Signed()))

	loginHandler := api.NewLoginHandler(api.LoginHandlerConfig{
		Clients:               registry,
		Settings:              provider,
		Gate:                  gate.New(policies, logger),
		Store:                 store,
		Recorder:              m,
		Logger:                logger,
		PublicBaseURL:         cfg.GetPublicBaseURL(),
		ClearDestinationOnUse: cfg.GetClearDestinationOnUse(),
	})

	healthService := health.NewService(version, cfg.GetEnvironment())
	healthService.Register(health.NewPolicyChecker(policies))
	if redisClient != nil {
		healthService.Register(health.NewRedisChecker(redisClient))
	}
	for _, locale := range provider.Locales() {
		creds, err := provider.Credentials(locale)
		if err != nil {
			return err
		}
		healthService.Register(health.NewHTTPChecker("provider:"+locale, creds.Endpoint, 5*time.Second))
	}

	router, rateLimitManager := setupRouter(ctx, cfg, logger, m, redisClient, loginHandler, healthService)
	if rateLimitManager != nil {
		defer rateLimitManager.Shutdown()
	}

	server := &http.Server{
		Addr:         ":" + cfg.GetServerPort(),
		Handler:      router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("addr", server.Addr),
			slog.String("environment", cfg.GetEnvironment()),
			slog.String("version", version),
			slog.Any("locales", provider.Locales()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func connectRedis(ctx context.Context, cfg *config.AppConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.GetRedisAddr(), err)
	}
	return client, nil
}

// clientFactory builds provider clients, wrapped in a profile cache when one
// is configured. All locales share the cache; keys are token hashes.
func clientFactory(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
	redisClient *redis.Client,
) oauth.Factory {
	ttl := cfg.GetProfileCacheTTL()

	var cache oauth.ProfileCache
	switch {
	case ttl <= 0:
	case redisClient != nil:
		cache = oauth.NewRedisProfileCache(redisClient, "wa_oauth:profile:")
	default:
		memory := oauth.NewMemoryProfileCache()
		go sweepProfileCache(ctx, memory, ttl)
		cache = memory
	}

	return func(creds settings.Credentials) oauth.Client {
		client := oauth.NewProviderClient(creds,
			oauth.WithTimeout(cfg.GetProviderTimeout()),
			oauth.WithObserver(m.ObserveProvider),
		)
		if cache == nil {
			return client
		}
		return oauth.NewCachingClient(client, cache, ttl, logger)
	}
}

func sweepProfileCache(ctx context.Context, cache *oauth.MemoryProfileCache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cache.DeleteExpired()
		}
	}
}

// watchPolicyReloads re-reads the policy file on SIGHUP. A file that fails
// to load leaves the current policies in place.
func watchPolicyReloads(ctx context.Context, logger *slog.Logger, policies repository.PolicyRepository, filename string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			n, err := repository.ReloadPolicyFile(ctx, policies, filename)
			if err != nil {
				logger.Error("policy reload failed",
					slog.String("file", filename),
					slog.String("error", err.Error()))
				continue
			}
			logger.Info("policies reloaded", slog.String("file", filename), slog.Int("count", n))
		}
	}
}

func setupRouter(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
	redisClient *redis.Client,
	loginHandler *api.LoginHandler,
	healthService *health.Service,
) (*gin.Engine, *middleware.RateLimitManager) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Warn("failed to reset trusted proxies", slog.String("error", err.Error()))
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(middleware.LoggingConfig{
		Logger:    logger,
		SkipPaths: []string{"/health", "/ping", "/metrics"},
		Observe:   m.ObserveHTTP,
	}))
	router.Use(middleware.DefaultRecoveryMiddleware(logger))

	api.NewHealthHandler(healthService).RegisterRoutes(router)
	if cfg.GetMetricsEnabled() {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	group := router.Group(api.RoutePrefix)

	var rateLimitManager *middleware.RateLimitManager
	if cfg.GetRateLimitEnabled() {
		rateLimitMiddleware, manager := middleware.RateLimitMiddleware(ctx, middleware.RateLimitConfig{
			RequestsPerMinute: cfg.GetRateLimitRequestsPerMinute(),
			CacheCapacity:     cfg.GetRateLimitCacheCapacity(),
			Redis:             redisClient,
			Logger:            logger,
		})
		group.Use(rateLimitMiddleware)
		rateLimitManager = manager
	}

	loginHandler.RegisterRoutes(group)

	jsonGroup := group.Group("")
	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		jsonGroup.Use(middleware.CORSMiddleware(middleware.CORSConfig{AllowedOrigins: origins}))
	}
	loginHandler.RegisterJSONRoutes(jsonGroup)

	return router, rateLimitManager
}
