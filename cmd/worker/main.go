package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/propdesk/propdesk/internal/app"
	"github.com/propdesk/propdesk/internal/platform/db"
	"github.com/propdesk/propdesk/internal/rbac"
	"github.com/propdesk/propdesk/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	seeder := rbac.NewSeeder(pool, logger)

	seedTask, err := jobs.NewSeedPolicyTask(time.Now().UTC())
	if err != nil {
		logger.Error("build seed task", slog.Any("error", err))
		os.Exit(1)
	}
	backfillTask, err := jobs.NewDefaultRoleBackfillTask(time.Now().UTC())
	if err != nil {
		logger.Error("build backfill task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask := asynq.NewTask(jobs.TaskTypeExpiredAssignmentSweep, nil, asynq.Queue(jobs.QueueDefault))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSeedPolicy, Handler: jobs.NewSeedPolicyHandler(seeder, logger)},
			{Type: jobs.TaskTypeDefaultRoleBackfill, Handler: jobs.NewDefaultRoleBackfillHandler(seeder, logger)},
			{Type: jobs.TaskTypeExpiredAssignmentSweep, Handler: jobs.NewExpiredAssignmentSweepHandler(pool, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: backfillTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * 0", Task: seedTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
