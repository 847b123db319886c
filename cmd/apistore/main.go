package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/apistore/pkg/config"
	"github.com/platinummonkey/apistore/pkg/httputil"
	"github.com/platinummonkey/apistore/pkg/middleware"
	"github.com/platinummonkey/apistore/pkg/observability"
	"github.com/platinummonkey/apistore/pkg/rbac"
	"github.com/platinummonkey/apistore/pkg/search"
	"github.com/platinummonkey/apistore/pkg/storage"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	initSchema := flag.Bool("init-schema", false, "Create the catalog and role tables before serving")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger, *initSchema || cfg.Database.InitSchema); err != nil {
		logger.WithError(err).Error("apistore stopped with error")
		os.Exit(1)
	}
	logger.Info("apistore stopped")
}

func run(cfg *config.Config, logger *observability.Logger, initSchema bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTelConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	conns, err := storage.NewConnectionManager(cfg.Database.ConnectionConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"driver":   conns.Dialect().Name(),
		"replicas": conns.ReplicaCount(),
	}).Info("Database connected")

	if initSchema {
		if err := storage.ApplySchema(ctx, conns.Primary(), conns.Dialect()); err != nil {
			return err
		}
		if err := rbac.Migrate(ctx, conns.Primary(), conns.Dialect()); err != nil {
			return err
		}
		logger.Info("Schema initialized")
	}
	conns.StartHealthCheckRoutine(ctx, cfg.Database.HealthInterval, metrics)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)
	conns.WatchReplicaReload(ctx, reload, config.ReplicaURLs)

	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Cache.RedisConfig())
		if err != nil {
			return err
		}
		logger.Info("Redis role cache enabled")
	}

	resolverOpts := []rbac.CachedResolverOption{
		rbac.WithCacheMetrics(metrics),
		rbac.WithCacheLogger(logger),
	}
	if redisClient != nil {
		resolverOpts = append(resolverOpts, rbac.WithRedisCache(rbac.NewRedisRoleCache(redisClient, cfg.Cache.RoleCacheTTL)))
	}
	resolver := rbac.NewCachedResolver(rbac.NewStore(conns.Primary(), conns.Dialect()), cfg.Cache.RoleCacheConfig(), resolverOpts...)

	service, err := search.NewService(
		storage.NewSQLExecutor(conns, metrics),
		search.WithConfig(cfg.Search.ServiceConfig(conns.Dialect())),
		search.WithRoleResolver(resolver),
		search.WithLogger(logger),
		search.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create search service: %w", err)
	}

	router := mux.NewRouter()
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	search.NewSearchHandlers(service, search.WithTrustedRoleHeader(cfg.Server.TrustRoleHeader)).RegisterRoutes(apiRouter)
	if cfg.Server.TrustRoleHeader {
		logger.Warn("Taking caller roles from the X-Roles header")
	}
	if cfg.RateLimit.Enabled {
		users, anonymous := newLimiters(ctx, cfg.RateLimit, redisClient)
		apiRouter.Use(middleware.NewRateLimitMiddleware(users, anonymous, search.HeaderUser, logger).Handler)
	}

	chain := httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		observability.HTTPMetricsMiddleware(metrics),
	)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(chain(router), "apistore"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(version, conns.Primary(), redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error {
		return conns.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		srv := srv
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

// newLimiters shares limits through Redis when it is available
func newLimiters(ctx context.Context, cfg config.RateLimitConfig, redisClient *redis.Client) (middleware.Limiter, middleware.Limiter) {
	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, cfg.UserLimits(), "apistore:ratelimit:user"),
			middleware.NewDistributedRateLimiter(redisClient, cfg.AnonymousLimits(), "apistore:ratelimit:anon")
	}

	users := middleware.NewRateLimiter(cfg.UserLimits())
	anonymous := middleware.NewRateLimiter(cfg.AnonymousLimits())
	users.StartCleanup(ctx)
	anonymous.StartCleanup(ctx)
	return users, anonymous
}
