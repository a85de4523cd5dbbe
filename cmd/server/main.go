// Package main is the entry point for the assessment engine API server.
//
// The server wires the layers together following Clean Architecture:
//   - Domain: staircase, quota ledger, qualification, unlock gate
//   - Application: command/query handlers and event handlers
//   - Infrastructure: postgres, redis, identity client, scheduler
//   - Interface: REST API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/medprep-hub/assessment-engine/config"
	"github.com/medprep-hub/assessment-engine/internal/application/command"
	"github.com/medprep-hub/assessment-engine/internal/application/eventhandler"
	"github.com/medprep-hub/assessment-engine/internal/application/query"
	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/external/identity"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/messaging"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/persistence/postgres"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/persistence/redis"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/scheduler"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/scheduler/jobs"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/service"
	httpserver "github.com/medprep-hub/assessment-engine/internal/interface/http"
	"github.com/medprep-hub/assessment-engine/internal/interface/http/handlers"
	"github.com/medprep-hub/assessment-engine/pkg/keymutex"
	"github.com/medprep-hub/assessment-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
	log.Info("starting assessment engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")

	var dbConn *postgres.Connection
	if cfg.Database.URL != "" {
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	} else {
		pgCfg := postgres.DefaultConfig()
		pgCfg.Host = cfg.Database.Host
		pgCfg.Port = cfg.Database.Port
		pgCfg.User = cfg.Database.User
		pgCfg.Password = cfg.Database.Password
		pgCfg.Database = cfg.Database.Name
		pgCfg.SSLMode = cfg.Database.SSLMode
		pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		pgCfg.MinConns = int32(cfg.Database.MinConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		dbConn, err = postgres.NewConnection(ctx, pgCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		log.Info("running database migrations")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		log.Info("connecting to redis")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to redis, caching disabled", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	progressRepo := postgres.NewProgressRepository(dbConn)
	sessionRepo := postgres.NewSessionRepository(dbConn)
	quotaRepo := postgres.NewQuotaRepository(dbConn)
	uow := postgres.NewUnitOfWork(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. IDENTITY PROVIDER CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	catalog := entitlement.DefaultCatalog()

	var tierResolver entitlement.TierResolver
	if cfg.Identity.BaseURL != "" {
		clientCfg := identity.DefaultClientConfig(cfg.Identity.BaseURL)
		clientCfg.APIKey = cfg.Identity.APIKey
		clientCfg.Timeout = cfg.Identity.RequestTimeout
		clientCfg.Logger = log
		identityClient := identity.NewClient(clientCfg)

		var planCache identity.PlanCache
		if redisCache != nil {
			planCache = redisCache
		}
		tierResolver = identity.NewTierResolver(
			identityClient, catalog, planCache, nil, cfg.Identity.PlanCacheTTL, log,
		)
	} else {
		// No provider configured: everyone runs on the most restrictive
		// tier, which is also the safe default for local development.
		log.Warn("IDENTITY_BASE_URL not set, all learners resolve to the free tier")
		tierResolver = entitlement.StaticTierResolver{Tier: catalog.Fallback()}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	locker := keymutex.New(0)

	beginSession := command.NewBeginSessionHandler(progressRepo, sessionRepo, locker, eventBus)
	submitAnswer := command.NewSubmitAnswerHandler(progressRepo, sessionRepo, quotaRepo, tierResolver, uow, locker, eventBus)
	finishSession := command.NewFinishSessionHandler(progressRepo, sessionRepo, uow, locker, eventBus)
	sweepSessions := command.NewSweepSessionsHandler(sessionRepo, locker, eventBus)

	var snapshotCache query.SnapshotCache
	if redisCache != nil {
		snapshotCache = redis.NewSnapshotCache(redisCache)
	}

	unlockQuery := query.NewGetUnlockStatusHandler(progressRepo)
	performanceQuery := query.NewGetPerformanceHandler(progressRepo, progressRepo)
	quotaQuery := query.NewGetQuotaStatusHandler(progressRepo, quotaRepo, tierResolver)
	snapshotQuery := query.NewGetSnapshotHandler(progressRepo, quotaRepo, tierResolver, snapshotCache)
	historyQuery := query.NewGetSessionHistoryHandler(sessionRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	notifier := service.NewLogNotifier(log)
	qualifiedHandler := eventhandler.NewOnSessionQualifiedHandler(notifier, log)
	for _, et := range []shared.EventType{shared.EventSessionQualified, shared.EventBankUnlocked} {
		if err := eventBus.Subscribe(et, qualifiedHandler); err != nil {
			return fmt.Errorf("failed to subscribe qualification handler: %w", err)
		}
	}

	if snapshotCache != nil {
		// Every event below changes something the selection snapshot is
		// derived from.
		invalidator := eventhandler.NewOnProgressChangedHandler(snapshotCache, log)
		for _, et := range []shared.EventType{
			shared.EventAnswerSubmitted,
			shared.EventTierAdvanced,
			shared.EventTierLowered,
			shared.EventSessionFinished,
			shared.EventSessionAbandoned,
			shared.EventBankUnlocked,
			shared.EventQuotaExhausted,
		} {
			if err := eventBus.Subscribe(et, invalidator); err != nil {
				return fmt.Errorf("failed to subscribe cache invalidator: %w", err)
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(log)

		sweepJob := jobs.NewSweepAbandonedSessionsJob(sweepSessions, cfg.Scheduler.SessionIdleTimeout, log)
		if err := sched.Register(sweepJob, scheduler.NewIntervalSchedule(cfg.Scheduler.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		health.AddCheck("redis", handlers.NewCacheCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpCfg.AdminKeyHashes = cfg.HTTP.AdminKeyHashes

	httpDeps := httpserver.Dependencies{
		BeginSessionHandler:      beginSession,
		SubmitAnswerHandler:      submitAnswer,
		FinishSessionHandler:     finishSession,
		GetUnlockStatusHandler:   unlockQuery,
		GetPerformanceHandler:    performanceQuery,
		GetQuotaStatusHandler:    quotaQuery,
		GetSnapshotHandler:       snapshotQuery,
		GetSessionHistoryHandler: historyQuery,
		Logger:                   log,
		HealthChecker:            health,
	}
	if redisCache != nil {
		httpDeps.RateLimiter = redisCache
	}
	if sched != nil {
		httpDeps.Scheduler = sched
	}

	server := httpserver.NewServer(httpCfg, httpDeps)
	errCh := server.StartAsync()

	log.Info("assessment engine is running", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 14. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", logger.Err(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
