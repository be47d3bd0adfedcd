package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/worker-portal/internal/api/http"
	"github.com/spec-kit/worker-portal/internal/api/http/handlers"
	"github.com/spec-kit/worker-portal/internal/apiclient"
	"github.com/spec-kit/worker-portal/internal/auth"
	"github.com/spec-kit/worker-portal/internal/config"
	"github.com/spec-kit/worker-portal/internal/events"
	"github.com/spec-kit/worker-portal/internal/messaging"
	"github.com/spec-kit/worker-portal/internal/observability"
	"github.com/spec-kit/worker-portal/internal/persistence"
	"github.com/spec-kit/worker-portal/internal/service"
	"github.com/spec-kit/worker-portal/internal/session"
	"github.com/spec-kit/worker-portal/internal/worker"
)

const (
	maxUploadBytes = 16 << 20
	purgeInterval  = 10 * time.Minute
	sweepInterval  = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.App.Name, cfg.Telemetry, logger)

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	sealer, err := auth.NewSealer(cfg.Session.Secret)
	if err != nil {
		logger.Fatal("failed to derive session key", zap.Error(err))
	}
	sessions := session.NewSealedStore(store, sealer)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var publisher service.AuditPublisher
	if cfg.AMQP.URL != "" {
		rmq, err := messaging.NewRabbitMQ(cfg.AMQP, logger)
		if err != nil {
			logger.Error("audit broker unavailable, auditing to log only", zap.Error(err))
		} else {
			defer rmq.Close()
			publisher = rmq
		}
	}
	worker.StartAuditWorker(service.NewAuditService(dispatcher, publisher, logger))

	client := apiclient.New(apiclient.OptionsFromConfig(cfg.API), dispatcher, metrics, logger)
	guard := session.NewGuard(client, sessions, dispatcher, logger)
	guard.StartSweeper(ctx, sweepInterval, cfg.Session.TTL())
	cookies := auth.NewSessionCookie(
		auth.NewTokenManager(cfg.Session.Secret, cfg.Session.TTL()),
		cfg.Session.CookieName,
		cfg.Session.CookieSecure,
	)
	workerAPI := func(sessionID, token string) service.WorkerAPI {
		return client.ForSession(sessionID, token)
	}

	loginLimiter := httptransport.NewRateLimiter(cfg.RateLimit.LoginRequests, cfg.RateLimit.LoginWindow())
	loginLimiter.Cleanup(ctx)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: maxUploadBytes,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:       handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{"session_store": sessions}),
		Metrics:      handlers.NewMetricsHandler(metrics),
		Auth:         handlers.NewAuthHandler(guard, cookies, logger),
		Dashboard:    handlers.NewDashboardHandler(service.NewDashboardService(nil, logger), workerAPI),
		Complaints:   handlers.NewComplaintsHandler(service.NewComplaintService(dispatcher, nil, logger), workerAPI),
		Session:      httptransport.NewSessionMiddleware(guard, cookies, logger),
		LoginLimiter: loginLimiter,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}

// openStore builds the configured session backend and returns its closer.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, func()) {
	switch cfg.Session.Store {
	case config.StorePostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.Migrations(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store := session.NewPostgresStore(pg.PoolHandle(), cfg.Session.TTL())
		go purgeExpired(ctx, store, logger)
		return store, pg.Close
	case config.StoreMemory:
		logger.Warn("using in-memory session store; sessions do not survive restarts")
		return session.NewMemoryStore(), func() {}
	default:
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		return session.NewRedisStore(redis.Client, cfg.Session.TTL()), redis.Close
	}
}

// purgeExpired deletes lapsed postgres session rows until ctx is done.
func purgeExpired(ctx context.Context, store *session.PostgresStore, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
