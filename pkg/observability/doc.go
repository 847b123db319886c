// Package observability provides structured logging, Prometheus metrics, health
// checks and OpenTelemetry tracing for the API store.
//
// # Structured Logging
//
// Logger writes JSON lines through logrus; context fields are nested under "fields":
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("search_type", "ATTRIBUTE").Info("catalog search completed")
//
// Request-scoped logging:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	observability.FromContextOr(ctx, logger).Error("search failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordSearch("FULL_TEXT", "ok", elapsed, len(items))
//	metrics.RecordCacheHit("roles_l1")
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version, db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// The catalog database is required; an unreachable Redis role cache only
// degrades the service.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "apistore",
//		Insecure:    true,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second, apiServer, healthServer)
//	sm.RegisterShutdownFunc("database", func(ctx context.Context) error { return conns.Close() })
//	err := sm.Shutdown(context.Background())
package observability
