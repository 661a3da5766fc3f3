package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/dispatcher"
	"github.com/finstack/docflow/internal/application/engine"
	"github.com/finstack/docflow/internal/application/notification"
	"github.com/finstack/docflow/internal/application/scheduler"
	"github.com/finstack/docflow/internal/application/sweeper"
	"github.com/finstack/docflow/internal/config"
	"github.com/finstack/docflow/internal/infrastructure/notify"
	"github.com/finstack/docflow/internal/infrastructure/persistence/repository"
	"github.com/finstack/docflow/internal/infrastructure/persistence/sqlite"
	"github.com/finstack/docflow/internal/infrastructure/policy"
	"github.com/finstack/docflow/internal/infrastructure/worker"
	httpserver "github.com/finstack/docflow/internal/interfaces/http"
	"github.com/finstack/docflow/pkg/database"
	"github.com/finstack/docflow/pkg/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting document workflow service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Database and migrations
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories and transaction manager
	txManager := sqlite.NewDB(db.DB, logger)
	docRepo := repository.NewDocumentRepository(db.DB, logger)
	stepRepo := repository.NewStepRepository(db.DB, logger)
	scheduleRepo := repository.NewScheduleRepository(db.DB, logger)
	installmentRepo := repository.NewInstallmentRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Approval policies and authorization
	policyProvider, err := policy.NewProvider(cfg.Approval)
	if err != nil {
		logger.Fatal("Failed to load approval policies", zap.Error(err))
	}
	authorizer := policy.NewAuthorizer()

	// Event dispatcher and notifications
	kvLogger := utils.NewKVLogger(logger)
	eventDispatcher := dispatcher.NewDispatcher(dispatcher.WithLogger(kvLogger))
	defer eventDispatcher.Close()

	notifier := notify.NewLogNotifier(logger)
	notification.NewHandler(notifier, cfg.Notification.Recipient, logger).Register(eventDispatcher)

	// Application services
	workflowEngine := engine.NewEngine(
		docRepo, stepRepo, scheduleRepo, installmentRepo, auditRepo,
		policyProvider, authorizer, txManager, logger,
		engine.WithDispatcher(eventDispatcher),
	)
	installmentScheduler := scheduler.NewScheduler(
		scheduleRepo, installmentRepo, txManager, logger,
		scheduler.WithDispatcher(eventDispatcher),
	)
	overdueSweeper := sweeper.NewSweeper(
		docRepo, installmentRepo, workflowEngine, installmentScheduler,
		cfg.Sweeper.BatchLimit, logger,
	)

	// Background workers
	workerManager := worker.NewManager(logger)
	workerManager.Register(worker.NewSweepWorker(overdueSweeper, cfg.Sweeper.Interval, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server
	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		workflowEngine, installmentScheduler, overdueSweeper,
		docRepo, stepRepo, auditRepo,
		kvLogger,
	)

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("Shutting down")

	if err := workerManager.StopAll(); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
