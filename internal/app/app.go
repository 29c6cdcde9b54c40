// Package app assembles the club's runtime graph from configuration. Both
// binaries build the same graph: the worker to execute jobs, the scheduler
// to match seasons, send the chat digest and sweep stranded jobs (which
// needs the same job handlers).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"giftclub/internal/club"
	"giftclub/internal/config"
	"giftclub/internal/core"
	"giftclub/internal/db"
	"giftclub/internal/external"
	"giftclub/internal/matching"
	"giftclub/internal/notify"
	"giftclub/internal/outbox"
	"giftclub/internal/queue"
	"giftclub/internal/scheduler"
	"giftclub/internal/taskqueue"
	"giftclub/internal/types"
)

// memoryCacheCleanup is how often the in-process profile cache drops
// expired entries.
const memoryCacheCleanup = 5 * time.Minute

// App holds the assembled components.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool   *pgxpool.Pool
	Repos  *db.Repositories
	Jobs   *db.JobRepository
	Queue  *taskqueue.Queue
	Outbox *outbox.Runner
	Worker *taskqueue.Worker

	Club        *club.Service
	Coordinator *matching.Coordinator
	ChatDigest  *scheduler.ChatDigest
	Sweeper     *scheduler.JobSweeper

	// Metrics is set when the Prometheus sink is selected.
	Metrics *prometheus.Registry
	Probes  []core.HealthProbe

	closers []func()
}

// Build connects to the database and AWS and wires every component.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := core.OpenPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	awsCfg, err := core.LoadAWS(ctx, cfg.AWS)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a, err := assemble(cfg, logger, pool, awsCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.Probes = append(a.Probes, core.NewProbe("database", pool.Ping))
	return a, nil
}

func assemble(cfg *config.Config, logger *slog.Logger, conn db.Conn, awsCfg aws.Config) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	clock := types.RealClock{}
	tlog := core.NewLogAdapter(logger)

	a.Repos = db.NewRepositories(conn)
	a.Jobs = db.NewJobRepository(conn)

	var dispatcher taskqueue.Dispatcher = taskqueue.NopDispatcher{}
	if cfg.AWS.JobQueueURL != "" {
		dispatcher = queue.NewSQSDispatcher(sqs.NewFromConfig(awsCfg), cfg.AWS.JobQueueURL, logger)
	} else {
		logger.Warn("no job queue configured, workers must poll")
	}

	metrics, err := a.jobMetrics(awsCfg, tlog)
	if err != nil {
		return nil, err
	}

	habr := newHabrClient(cfg.Platform)
	sender, err := newEmailSender(cfg.Email, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	a.Worker = taskqueue.NewWorker(a.Jobs, dispatcher, metrics, clock, tlog, taskqueue.WorkerConfig{
		Retry: taskqueue.RetryPolicy{
			MaxRetries: cfg.Queue.MaxRetries,
			Backoff:    cfg.Queue.RetryBackoff,
		},
		Lease:        cfg.Queue.Lease,
		JobTimeout:   cfg.Queue.JobTimeout,
		BatchSize:    cfg.Queue.BatchSize,
		Concurrency:  cfg.Queue.Concurrency,
		PollInterval: cfg.Queue.PollInterval,
	})
	users := a.Repos.Users()
	notify.Register(a.Worker,
		notify.NewPlatformNotifier(users, habr, tlog),
		notify.NewMailer(users, sender, notify.MailerConfig{
			FromAddress:     cfg.Email.FromAddress,
			FromName:        cfg.Email.FromName,
			ReplyToAddress:  cfg.Email.ReplyToAddress,
			ReplyToName:     cfg.Email.ReplyToName,
			SubjectPrefix:   cfg.Email.SubjectPrefix,
			SiteURL:         cfg.Email.SiteURL,
			MessageIDDomain: cfg.Email.MessageIDDomain,
		}, tlog),
		notify.NewBadgeGranter(users, habr, tlog),
	)

	a.Queue = taskqueue.NewQueue(a.Jobs, dispatcher, clock, tlog)
	a.Outbox = outbox.NewRunner(db.NewTxManager(conn), a.Queue, tlog)

	cache, err := a.profileCache(cfg.Profile)
	if err != nil {
		return nil, err
	}
	a.Club = club.NewService(club.Config{
		UnitOfWork: a.Outbox,
		Users:      users,
		Profiles:   external.NewProfileService(habr, cache, cfg.Profile.CacheTTL, logger),
		Clock:      clock,
		SiteURL:    cfg.Email.SiteURL,
		Logger:     logger,
	})

	a.Coordinator = matching.NewCoordinator(a.Repos.Seasons(), a.Outbox, clock, matching.NewRandFactory(),
		matching.CoordinatorConfig{
			Clusters: cfg.Matching.ClusterDefinitions(),
			SiteURL:  cfg.Email.SiteURL,
		}, logger)
	a.ChatDigest = scheduler.NewChatDigest(a.Outbox, logger)
	a.Sweeper = scheduler.NewJobSweeper(a.Worker, a.Jobs, scheduler.SweepConfig{
		Grace:     cfg.Queue.SweepGrace,
		Retention: cfg.Queue.Retention,
	}, logger)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) jobMetrics(awsCfg aws.Config, tlog types.Logger) (taskqueue.JobMetrics, error) {
	switch sink := a.Config.Observability.MetricsSink; sink {
	case "cloudwatch":
		return external.NewCloudWatchJobMetrics(cloudwatch.NewFromConfig(awsCfg), a.Config.Observability.MetricNamespace, tlog), nil
	case "prometheus":
		a.Metrics = prometheus.NewRegistry()
		return external.NewPrometheusJobMetrics(a.Metrics), nil
	case "none", "":
		return taskqueue.NopMetrics{}, nil
	default:
		return nil, fmt.Errorf("unknown metrics sink %q", sink)
	}
}

func (a *App) profileCache(cfg config.ProfileConfig) (external.ProfileCache, error) {
	if cfg.RedisURL.IsEmpty() {
		return external.NewMemoryProfileCache(memoryCacheCleanup), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.Probes = append(a.Probes, core.NewProbe("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	return external.NewRedisProfileCache(client), nil
}

func newHabrClient(cfg config.PlatformConfig) *external.HabrClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	return external.NewHabrClient(&http.Client{Transport: transport}, external.HabrConfig{
		BaseURL:        cfg.BaseURL,
		ClientID:       cfg.ClientID,
		APIKey:         cfg.APIKey,
		UserAgent:      cfg.UserAgent,
		NotifyTimeout:  cfg.NotifyTimeout,
		ProfileTimeout: cfg.ProfileTimeout,
		BadgeID:        cfg.BadgeID,
		BadgeTitle:     cfg.BadgeTitle,
	}, external.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)))
}

func newEmailSender(cfg config.EmailConfig, awsCfg aws.Config, logger *slog.Logger) (notify.EmailSender, error) {
	switch cfg.Provider {
	case "ses":
		return external.NewSESClient(awsCfg, cfg.SESConfigSet, logger), nil
	case "log":
		return external.NewLogEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
