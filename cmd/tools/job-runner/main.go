// Package main implements the job-runner CLI, which runs scheduler tasks
// directly instead of through the Lambda shim.
//
// It is meant for local development, manual backfills and debugging:
//
//	go run ./cmd/tools/job-runner --task=match_seasons
//	go run ./cmd/tools/job-runner --task=chat_digest --reference-time=2026-12-20T09:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=sweep_jobs
//	go run ./cmd/tools/job-runner --list
//
// Configuration is loaded the same way as in the deployed functions, so a
// .env file with APP_ENV=local and DATABASE_URL is enough. In --dry-run mode
// the tool prints the EventBridge payload and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"

	"giftclub/internal/app"
	"giftclub/internal/config"
	"giftclub/internal/core"
	"giftclub/internal/db"
	"giftclub/internal/scheduler"
)

var validTasks = map[scheduler.TaskType]string{
	scheduler.TaskMatchSeasons: "Assign receivers for every season whose registration has closed",
	scheduler.TaskChatDigest:   "Notify members about unread chat messages",
	scheduler.TaskSweepJobs:    "Run jobs whose wake-up message was lost and purge finished ones",
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., match_seasons)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-12-20T09:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run scheduler tasks directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *listFlag {
		printAvailableTasks(os.Stdout)
		return
	}

	payload, err := buildPayload(*taskFlag, *refTimeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if *dryRunFlag {
		if err := printPayload(os.Stdout, payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := core.NewLogger(os.Stdout, "info")
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = core.NewLogger(os.Stdout, cfg.LogLevel)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	runner := &scheduler.Runner{
		Matcher:    a.Coordinator,
		Digest:     a.ChatDigest,
		Sweeper:    a.Sweeper,
		JobLock:    db.NewJobLockRepository(a.Pool),
		JobHistory: db.NewJobHistoryRepository(a.Pool),
		WorkerID:   "job-runner-" + uuid.New().String(),
		Logger:     logger,
	}

	result, err := runner.Handle(ctx, payload)
	if err != nil {
		logger.Error("task execution failed", "task", string(payload.Task), "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("task execution succeeded", "task", string(payload.Task), "result", result)
}

// buildPayload validates the flags and turns them into the payload the
// scheduler Lambda receives.
func buildPayload(task, refTime string) (scheduler.MaintenancePayload, error) {
	if task == "" {
		return scheduler.MaintenancePayload{}, fmt.Errorf("--task is required")
	}
	taskType := scheduler.TaskType(task)
	if _, ok := validTasks[taskType]; !ok {
		return scheduler.MaintenancePayload{}, fmt.Errorf("unknown task type %q (see --list)", task)
	}

	payload := scheduler.MaintenancePayload{Task: taskType}
	if refTime != "" {
		t, err := time.Parse(time.RFC3339, refTime)
		if err != nil {
			return scheduler.MaintenancePayload{}, fmt.Errorf("invalid --reference-time %q: expected RFC3339", refTime)
		}
		t = t.UTC()
		payload.ReferenceTime = &t
	}
	return payload, nil
}

func printAvailableTasks(w io.Writer) {
	names := make([]string, 0, len(validTasks))
	for task := range validTasks {
		names = append(names, string(task))
	}
	slices.Sort(names)

	fmt.Fprintln(w, "Available tasks:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, validTasks[scheduler.TaskType(name)])
	}
}

func printPayload(w io.Writer, payload scheduler.MaintenancePayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
