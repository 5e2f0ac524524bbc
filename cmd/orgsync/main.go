package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/orgsync/orgsync/cmd/orgsync/cli"
	"github.com/orgsync/orgsync/internal/app"
	"github.com/orgsync/orgsync/internal/audit"
	"github.com/orgsync/orgsync/internal/conflicts"
	"github.com/orgsync/orgsync/internal/directory"
	"github.com/orgsync/orgsync/internal/grants"
	"github.com/orgsync/orgsync/internal/observability"
	"github.com/orgsync/orgsync/internal/platform/cache"
	"github.com/orgsync/orgsync/internal/platform/db"
	syncengine "github.com/orgsync/orgsync/internal/sync"
	"github.com/orgsync/orgsync/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	departmentRepo := directory.NewRepository(pool)
	grantRepo := grants.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	orchestrator := syncengine.NewOrchestrator(departmentRepo, grantRepo, auditService, redisClient, logger, metrics, syncengine.OrchestratorConfig{
		LeaseTTL:     cfg.SyncLeaseTTL,
		LevelWorkers: cfg.SyncLevelWorkers,
		SoftDeadline: cfg.SyncSoftDeadline,
	})

	detector := conflicts.NewDetector(departmentRepo, grantRepo, logger)
	conflictRepo := conflicts.NewRepository(pool)
	conflictService := conflicts.NewService(conflictRepo, detector, grantRepo, auditService, metrics, logger)

	// CLI dispatch: `orgsync sync` and `orgsync status` run one-shot against
	// the same wiring, anything else serves HTTP.
	if len(os.Args) > 1 {
		queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("build queue client", slog.Any("error", err))
			os.Exit(1)
		}
		code := cli.Run(ctx, cli.Deps{
			Logger:       logger,
			Orchestrator: orchestrator,
			Conflicts:    conflictService,
			Queue:        queue,
		}, os.Args[1:])
		_ = queue.Close()
		os.Exit(code)
	}

	syncHandler := syncengine.NewHandler(logger, orchestrator, app.RequireCapability)
	conflictsHandler := conflicts.NewHandler(logger, conflictService, app.RequireCapability)
	auditHandler := audit.NewHandler(logger, auditService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SyncHandler:      syncHandler,
		ConflictsHandler: conflictsHandler,
		AuditHandler:     auditHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
	logger.Info("shutdown complete")
}
