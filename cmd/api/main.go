package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/workorder-service/internal/api/http"
	"github.com/spec-kit/workorder-service/internal/api/http/handlers"
	"github.com/spec-kit/workorder-service/internal/auth"
	"github.com/spec-kit/workorder-service/internal/config"
	"github.com/spec-kit/workorder-service/internal/events"
	"github.com/spec-kit/workorder-service/internal/lifecycle"
	"github.com/spec-kit/workorder-service/internal/notify"
	"github.com/spec-kit/workorder-service/internal/observability"
	"github.com/spec-kit/workorder-service/internal/persistence"
	"github.com/spec-kit/workorder-service/internal/repository"
	"github.com/spec-kit/workorder-service/internal/scheduler"
	"github.com/spec-kit/workorder-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	workOrderRepo := repository.NewWorkOrderRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	unitRepo := repository.NewUnitRepository(pool)
	personRepo := repository.NewPersonRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	triggerRepo := repository.NewTriggerRepository(pool)
	jobRepo := repository.NewJobRepository(pool)

	metrics := observability.NewMetrics()
	workerPool := worker.NewPool(cfg.Notification.WorkerCount, cfg.Notification.QueueSize, logger)
	defer workerPool.Stop()

	eventDispatcher := events.NewDispatcher(workerPool, logger)

	registry := notify.NewTemplateRegistry(templateRepo, cfg.Notification.TemplateCacheTTL(), workerPool, logger)
	if err := registry.Warm(ctx); err != nil {
		logger.Warn("template cache warm failed", zap.Error(err))
	}
	policyEngine, err := notify.NewPolicyEngine(ctx, triggerRepo, unitRepo, logger)
	if err != nil {
		logger.Fatal("failed to load trigger configuration", zap.Error(err))
	}
	hub := notify.NewRealtimeHub(redis.Client, logger)
	identity := notify.NewIdentityResolver(personRepo)
	notifyDispatcher := notify.NewDispatcher(identity, registry, notificationRepo, hub, metrics, logger)
	notify.NewRouter(policyEngine, notifyDispatcher, logger).RegisterHandlers(eventDispatcher)

	bridge := scheduler.NewBridge(jobRepo, cfg.Scheduler, logger)
	engine := lifecycle.NewEngine(workOrderRepo, historyRepo, categoryRepo, unitRepo, personRepo,
		eventDispatcher, bridge, nil, logger)

	runner := scheduler.NewRunner(jobRepo, workOrderRepo, engine, eventDispatcher, metrics,
		cfg.Scheduler, nil, logger)
	if err := runner.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer runner.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		WorkOrders:     handlers.NewWorkOrdersHandler(engine, personRepo),
		Notifications:  handlers.NewNotificationsHandler(notificationRepo, hub),
		Templates:      handlers.NewTemplatesHandler(templateRepo, registry),
		AuthMiddleware: auth.Middleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
