package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/foyer/pkg/audit"
	"github.com/platinummonkey/foyer/pkg/authn"
	"github.com/platinummonkey/foyer/pkg/config"
	"github.com/platinummonkey/foyer/pkg/gateway"
	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/httputil"
	"github.com/platinummonkey/foyer/pkg/middleware"
	"github.com/platinummonkey/foyer/pkg/observability"
	"github.com/platinummonkey/foyer/pkg/realm"
	"github.com/platinummonkey/foyer/pkg/session"
	"github.com/platinummonkey/foyer/pkg/sso"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// The database serves the db realm, the token store, and the db
	// audit log; any of them being configured opens it.
	var db *sql.DB
	if cfg.Realm.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.Realm.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Session.Backend == "redis" {
		opts, err := redis.ParseURL(cfg.Session.RedisURL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		if cfg.Session.RedisPassword != "" {
			opts.Password = cfg.Session.RedisPassword
		}
		if cfg.Session.RedisDB != 0 {
			opts.DB = cfg.Session.RedisDB
		}
		if cfg.Session.RedisPoolSize > 0 {
			opts.PoolSize = cfg.Session.RedisPoolSize
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to ping redis: %v", err)
		}
	}

	// Session store. Redis expires session keys without firing destroy
	// listeners, so that backend also gets a liveness probe for the
	// sign-on prune cycle below. Probe errors count as alive; a redis
	// blip must not evict members.
	var sessions session.Manager
	var sessionAlive func(ctx context.Context, id string) bool
	if redisClient != nil {
		rm := session.NewRedisManager(redisClient, cfg.Session.TTL)
		sessions = rm
		sessionAlive = func(ctx context.Context, id string) bool {
			ok, err := rm.Exists(ctx, id)
			if err != nil {
				return true
			}
			return ok
		}
	} else {
		sessions = session.NewMemoryManager(cfg.Session.TTL, cfg.Session.SweepInterval)
	}

	users, err := buildRealm(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to build user realm: %v", err)
	}

	var tokens authn.TokenVerifier
	if db != nil {
		store := realm.NewTokenStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure token schema: %v", err)
		}
		tokens = store
	}

	auditDest, dbAudit, err := buildAudit(cfg, db)
	if err != nil {
		log.Fatalf("Failed to build audit trail: %v", err)
	}
	recorder := audit.NewRecorder(auditDest, logger.WithComponent("audit"), metrics)

	var oidcClient *authn.OIDCClient
	if cfg.OIDC != nil {
		oidcClient, err = authn.NewOIDCClient(ctx, *cfg.OIDC)
		if err != nil {
			log.Fatalf("Failed to configure OIDC: %v", err)
		}
	}
	var samlClient *authn.SAMLClient
	if cfg.SAML != nil {
		samlClient, err = authn.NewSAMLClient(*cfg.SAML)
		if err != nil {
			log.Fatalf("Failed to configure SAML: %v", err)
		}
	}

	// The destroy listener must be attached before the first request can
	// destroy a session, or the registry would miss the membership.
	var ssoRegistry *sso.Registry
	if cfg.Gateway.SSOEnabled {
		ssoRegistry = sso.NewRegistry(logger.WithComponent("sso"))
		sessions.OnDestroy(ssoRegistry.Listener())
	}

	apps, err := host.LoadDir(ctx, cfg.Gateway.AppsDir)
	if err != nil {
		log.Fatalf("Failed to load application manifests: %v", err)
	}

	gw, err := gateway.New(gateway.Config{
		Apps:     apps,
		Sessions: sessions,
		SSO:      ssoRegistry,
		Deps: authn.Deps{
			Realm:  users,
			Tokens: tokens,
			OIDC:   oidcClient,
			SAML:   samlClient,
		},
		CachePrincipals: cfg.Gateway.CachePrincipals,
		SessionCookie:   cfg.Gateway.SessionCookie,
		SSOCookie:       cfg.Gateway.SSOCookie,
		CookieSecure:    cfg.Gateway.CookieSecure,
		Logger:          logger.WithComponent("gateway"),
		Metrics:         metrics,
		Audit:           recorder,
	})
	if err != nil {
		log.Fatalf("Failed to build gateway: %v", err)
	}

	var handler http.Handler = gw
	if cfg.Gateway.LoginRateLimit > 0 {
		rlConfig := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Gateway.LoginRateLimit,
			WindowDuration:    cfg.Gateway.LoginRateWindow,
			BurstSize:         cfg.Gateway.LoginRateBurst,
		}
		var limiter middleware.Limiter
		if redisClient != nil {
			limiter = middleware.NewRedisLimiter(redisClient, rlConfig, "")
		} else {
			memLimiter := middleware.NewMemoryLimiter(rlConfig)
			memLimiter.StartCleanup(ctx)
			limiter = memLimiter
		}
		handler = middleware.NewLoginRateLimit(limiter, rlConfig, logger.WithComponent("ratelimit")).Handler(handler)
	}
	if cfg.Observability.MetricsEnabled {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "foyer-gateway")
	}
	handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	)(handler)

	mainServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health, metrics, and the audit API stay off the proxied surface.
	adminMux := http.NewServeMux()
	observability.RegisterHealthRoutes(adminMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(adminMux, registry)
	}
	if dbAudit != nil {
		auditRouter := mux.NewRouter()
		audit.NewHandlers(audit.NewDBStore(dbAudit)).RegisterRoutes(auditRouter)
		adminMux.Handle("/audit/", auditRouter)
	}
	adminServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      adminMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var pruner *cron.Cron
	if ssoRegistry != nil && sessionAlive != nil {
		pruner = cron.New()
		_, err := pruner.AddFunc(fmt.Sprintf("@every %s", cfg.Session.SweepInterval), func() {
			if removed := ssoRegistry.Prune(ctx, sessionAlive); removed > 0 {
				logger.WithField("sessions", removed).Info("Pruned expired sign-on memberships")
			}
		})
		if err != nil {
			log.Fatalf("Failed to schedule sign-on prune: %v", err)
		}
		pruner.Start()
	}

	var watcher *host.Watcher
	if cfg.Gateway.Watch {
		watcher, err = host.NewWatcher(cfg.Gateway.AppsDir, host.DefaultDebounce, logger.WithComponent("watcher"), func(apps []*host.App) {
			if err := gw.Reload(apps); err != nil {
				logger.WithError(err).Error("Failed to apply reloaded applications")
			}
		})
		if err != nil {
			log.Fatalf("Failed to create manifest watcher: %v", err)
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("Failed to start manifest watcher: %v", err)
		}
	}

	// SIGHUP forces a manifest reload even when the watcher is off.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			logger.Info("SIGHUP received, reloading application manifests")
			apps, err := host.LoadDir(ctx, cfg.Gateway.AppsDir)
			if err != nil {
				logger.WithError(err).Error("Manifest reload failed, keeping previous applications")
				continue
			}
			if err := gw.Reload(apps); err != nil {
				logger.WithError(err).Error("Failed to apply reloaded applications")
			}
		}
	}()

	go reportGauges(ctx, metrics, sessions, ssoRegistry, db, redisClient)

	// Closers run in registration order: stop intake first, then the
	// background producers, then flush writers before their stores.
	shutdown := observability.NewShutdownManager(logger, mainServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("admin-listener", func(ctx context.Context) error {
		return adminServer.Shutdown(ctx)
	})
	if watcher != nil {
		shutdown.Register("manifest-watcher", func(context.Context) error {
			return watcher.Close()
		})
	}
	if pruner != nil {
		shutdown.Register("sso-pruner", func(ctx context.Context) error {
			select {
			case <-pruner.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		})
	}
	shutdown.Register("session-manager", func(context.Context) error {
		cancel()
		return sessions.Close()
	})
	shutdown.Register("audit-recorder", func(context.Context) error {
		return recorder.Close()
	})
	if db != nil {
		shutdown.Register("database", func(context.Context) error {
			return db.Close()
		})
	}
	if otelProviders != nil {
		shutdown.Register("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithField("addr", adminServer.Addr).Info("Admin server listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Admin server failed")
		}
	}()

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    mainServer.Addr,
			"apps":    len(apps),
			"version": observability.Version,
		}).Info("Foyer gateway listening")
		if err := mainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Gateway server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

// buildRealm selects the credential store behind username and password
// logins.
func buildRealm(ctx context.Context, cfg *config.Config, db *sql.DB) (realm.Realm, error) {
	var users realm.Realm
	switch cfg.Realm.Backend {
	case "db":
		dbRealm := realm.NewDBRealm(db)
		if err := dbRealm.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		users = dbRealm
	default:
		if cfg.Realm.UsersFile != "" {
			mem, err := realm.LoadMemoryRealm(cfg.Realm.UsersFile)
			if err != nil {
				return nil, err
			}
			users = mem
		} else {
			users = realm.NewMemoryRealm()
		}
	}

	if cfg.Realm.LockoutMaxFailures > 0 {
		users = realm.NewLockoutRealm(users, cfg.Realm.LockoutMaxFailures, cfg.Realm.LockoutWindow)
	}
	return users, nil
}

// buildAudit assembles the configured audit destinations. The *DBLogger
// is non-nil when the db backend is enabled; the admin audit API serves
// from it.
func buildAudit(cfg *config.Config, db *sql.DB) (audit.Logger, *audit.DBLogger, error) {
	var dests []audit.Logger
	var dbLogger *audit.DBLogger
	for _, backend := range cfg.Audit.Backends {
		switch backend {
		case "file":
			fl, err := audit.NewFileLogger(audit.FileLoggerConfig{
				BasePath: cfg.Audit.Dir,
				Rotate:   cfg.Audit.Rotate,
				MaxSize:  cfg.Audit.MaxSize,
				MaxFiles: cfg.Audit.MaxFiles,
			})
			if err != nil {
				return nil, nil, err
			}
			dests = append(dests, fl)
		case "db":
			dl, err := audit.NewDBLogger(db)
			if err != nil {
				return nil, nil, err
			}
			dbLogger = dl
			dests = append(dests, dl)
		}
	}

	switch len(dests) {
	case 0:
		return nil, nil, nil
	case 1:
		return dests[0], dbLogger, nil
	default:
		return audit.NewMultiLogger(dests...), dbLogger, nil
	}
}

// reportGauges refreshes the capacity gauges the request path cannot
// update on its own.
func reportGauges(ctx context.Context, metrics *observability.Metrics, sessions session.Manager, ssoRegistry *sso.Registry, db *sql.DB, redisClient *redis.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := sessions.Active(ctx); err == nil {
				metrics.SessionsActive.Set(float64(n))
			}
			if ssoRegistry != nil {
				metrics.SSOEntriesActive.Set(float64(ssoRegistry.Len()))
				metrics.SSOAssociatedSessions.Set(float64(ssoRegistry.AssociatedSessions()))
			}
			if db != nil {
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
				metrics.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
				metrics.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
			}
			if redisClient != nil {
				metrics.RedisConnectionsActive.Set(float64(redisClient.PoolStats().TotalConns))
			}
		}
	}
}
