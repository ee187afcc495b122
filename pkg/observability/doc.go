// Package observability provides structured logging, Prometheus metrics,
// health probes, OpenTelemetry tracing, and coordinated shutdown.
//
// # Structured Logging
//
// Loggers emit one JSON object per line via log/slog. Derived loggers
// carry their fields immutably, so a subsystem logger can be fanned out
// once at startup:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	ssoLog := logger.WithComponent("sso")
//	ssoLog.WithField("entries", n).Info("prune complete")
//	logger.WithError(err).Error("reload failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/docs/", "200").Inc()
//	metrics.AuthDecisionsTotal.WithLabelValues("docs", "FORM", "success").Inc()
//
// # Health Probes
//
// The checker probes whatever backing services are configured and
// folds the results into one status. Mount it on the admin listener:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(adminMux, checker)
//
// /healthz answers 200 while the process serves HTTP; /readyz answers
// 503 when a hard dependency is down.
//
// # OpenTelemetry
//
// InitOTel installs global tracer and meter providers exporting over
// OTLP gRPC:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "foyer-gateway",
//		Insecure:    true,
//		SampleRatio: 0.1,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Shutdown
//
// The shutdown manager waits for SIGINT or SIGTERM, stops the main
// listener, then closes registered subsystems in registration order.
// Register in dependency order:
//
//	shutdown := observability.NewShutdownManager(logger, server, 30*time.Second)
//	shutdown.Register("audit-recorder", func(context.Context) error { return recorder.Close() })
//	shutdown.Register("database", func(context.Context) error { return db.Close() })
//	err := shutdown.WaitForShutdown()
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/gateway: request handling pipeline that records these metrics
package observability
