package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

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
		slog.Default().Info("test mode detected, skipping worker startup")
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
	auditService := audit.NewService(audit.NewRepository(pool))

	orchestrator := syncengine.NewOrchestrator(departmentRepo, grantRepo, auditService, redisClient, logger, metrics, syncengine.OrchestratorConfig{
		LeaseTTL:     cfg.SyncLeaseTTL,
		LevelWorkers: cfg.SyncLevelWorkers,
		SoftDeadline: cfg.SyncSoftDeadline,
	})
	detector := conflicts.NewDetector(departmentRepo, grantRepo, logger)
	conflictService := conflicts.NewService(conflicts.NewRepository(pool), detector, grantRepo, auditService, metrics, logger)

	var cron []jobs.CronRegistration
	if cfg.SyncCron != "" {
		task, err := jobs.NewPermissionSyncTask(cfg.SyncCronOperator)
		if err != nil {
			logger.Error("build sync task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.SyncCron,
			Task:    task,
			Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(0)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionSync, Handler: jobs.NewPermissionSyncHandler(orchestrator, logger)},
			{Type: jobs.TaskConflictScan, Handler: jobs.NewConflictScanHandler(conflictService, logger)},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shutdown complete")
}
