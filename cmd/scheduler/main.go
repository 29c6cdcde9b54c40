// Package main is the entrypoint for the scheduler Lambda function.
//
// EventBridge rules send a MaintenancePayload naming one task; the handler
// takes an hourly lock for it, routes to the matching service and records
// the run in job_history:
//
//   - match_seasons: match every season whose registration has closed.
//   - chat_digest:   notify members about unread chat messages.
//   - sweep_jobs:    run jobs whose wake-up message was lost, purge old ones.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"giftclub/internal/app"
	"giftclub/internal/config"
	"giftclub/internal/core"
	"giftclub/internal/db"
	"giftclub/internal/scheduler"
)

func main() {
	ctx := context.Background()
	logger := core.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
	logger.Info("scheduler initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = core.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.Service, "build", cfg.Build)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	workerID := uuid.New().String()
	runner := &scheduler.Runner{
		Matcher:    a.Coordinator,
		Digest:     a.ChatDigest,
		Sweeper:    a.Sweeper,
		JobLock:    db.NewJobLockRepository(a.Pool),
		JobHistory: db.NewJobHistoryRepository(a.Pool),
		WorkerID:   workerID,
		Logger:     logger,
	}
	logger.Info("scheduler initialized", "worker_id", workerID)

	lambda.Start(runner.Handle)
}
