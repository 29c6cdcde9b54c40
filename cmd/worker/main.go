// Package main is the entrypoint for the job worker.
//
// In Lambda the worker consumes wake-up messages from the jobs queue: each
// message names one job, which is claimed and run through the handler
// registered for its action. Handler failures are recorded on the job row
// and rescheduled by the task queue itself, so only bookkeeping failures are
// reported back to SQS for redelivery.
//
// With APP_ENV=local there is no queue; the worker polls for due jobs and
// serves /health and /metrics on the observability address until
// interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"giftclub/internal/app"
	"giftclub/internal/config"
	"giftclub/internal/core"
	"giftclub/internal/queue"
	"giftclub/internal/types"
)

// JobProcessor claims and runs a single job.
type JobProcessor interface {
	Process(ctx context.Context, jobID int64) error
}

// Handler holds the dependencies of the worker Lambda.
type Handler struct {
	Jobs   JobProcessor
	Logger *slog.Logger
}

// Handle processes a batch of wake-up messages. Malformed messages are
// acknowledged and dropped; the sweeper still finds their jobs.
func (h *Handler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse

	for _, record := range event.Records {
		logger := h.Logger.With("message_id", record.MessageId)

		jobID, err := queue.ParseJobMessage(record.Body)
		if err != nil {
			logger.WarnContext(ctx, "dropping malformed job message", "error", err)
			continue
		}

		msgCtx := types.WithRequestID(ctx, record.MessageId)
		if err := h.Jobs.Process(msgCtx, jobID); err != nil {
			logger.ErrorContext(ctx, "failed to process job", "job_id", jobID, "error", err)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func main() {
	logger := core.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
	logger.Info("worker initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = core.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.Service, "build", cfg.Build)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Environment != "local" {
		handler := &Handler{Jobs: a.Worker, Logger: logger}
		lambda.Start(handler.Handle)
		return
	}

	if err := runLocal(ctx, a, cfg.Observability.MetricsAddr); err != nil {
		logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// runLocal polls for due jobs and serves health and metrics until ctx ends.
func runLocal(ctx context.Context, a *app.App, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Worker.Run(ctx)
	})
	g.Go(func() error {
		return core.NewServer(a.Logger, gatherer(a), a.Probes...).ListenAndServe(ctx, addr)
	})

	return g.Wait()
}

func gatherer(a *app.App) prometheus.Gatherer {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics
}
