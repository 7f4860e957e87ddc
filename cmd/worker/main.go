package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/campusflow/campusflow/internal/app"
	"github.com/campusflow/campusflow/internal/approval"
	jobmetrics "github.com/campusflow/campusflow/internal/jobs"
	"github.com/campusflow/campusflow/internal/platform/db"
	"github.com/campusflow/campusflow/internal/rbac"
	"github.com/campusflow/campusflow/internal/shared"
	"github.com/campusflow/campusflow/jobs"
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
	metrics := jobmetrics.NewMetrics(nil)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskApprovalNotify, Handler: (&jobs.ApprovalNotifyJob{
			Notifier: jobs.LogNotifier{Logger: logger},
			Logger:   logger,
			Metrics:  metrics,
		}).Handle},
	}
	var cron []jobs.CronRegistration

	if cfg.UsesMemoryStore() {
		logger.Warn("memory store has no shared queue, approval reminder disabled")
	} else {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.Pool())
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		roles := rbac.NewService(rbac.NewRepository(pool), nil)
		roles.SetLogger(logger)
		approvals := approval.NewService(approval.NewRepository(pool), roles, shared.NewApprovalRecorder(pool, logger),
			approval.ServiceConfig{RepositoryTimeout: cfg.RepositoryTimeout}, logger)
		reminder := &jobs.ApprovalReminderJob{Queue: approvals, Logger: logger, Metrics: metrics}
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskApprovalReminder, Handler: reminder.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ReminderCron, Task: jobs.NewApprovalReminderTask()})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().AsynqOpt(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("handlers", len(handlers)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
