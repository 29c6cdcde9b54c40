// Package config defines the process configuration for giftclub binaries.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"strings"
	"time"

	"giftclub/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"giftclub"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Platform      PlatformConfig
	Profile       ProfileConfig
	Email         EmailConfig
	Queue         QueueConfig
	Matching      MatchingConfig
	Observability ObservabilityConfig

	// Build is injected via ldflags, not read from the environment.
	Build BuildInfo
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-central-1"`

	// JobQueueURL is the SQS queue that wakes workers. When empty, jobs are
	// only picked up by polling.
	JobQueueURL string `envconfig:"SQS_JOBS" validate:"omitempty,url"`

	// EndpointURL points the SDK at LocalStack. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PlatformConfig holds the Habr API credentials and client tuning.
type PlatformConfig struct {
	BaseURL   string       `envconfig:"HABR_BASE_URL" default:"https://habr.com" validate:"url"`
	ClientID  string       `envconfig:"HABR_CLIENT_ID" validate:"required"`
	APIKey    SecretString `envconfig:"HABR_APIKEY" validate:"required"`
	UserAgent string       `envconfig:"HABR_USER_AGENT"`

	ConnectTimeout time.Duration `envconfig:"HABR_CONNECT_TIMEOUT" default:"500ms"`
	NotifyTimeout  time.Duration `envconfig:"HABR_NOTIFY_TIMEOUT" default:"5s"`
	ProfileTimeout time.Duration `envconfig:"HABR_PROFILE_TIMEOUT" default:"1s"`

	RateLimit float64 `envconfig:"HABR_RATE_LIMIT" default:"10" validate:"gt=0"`
	RateBurst int     `envconfig:"HABR_RATE_BURST" default:"5" validate:"min=1"`

	// BadgeTitle identifies the club badge among a user's platform badges.
	BadgeTitle string `envconfig:"HABR_BADGE_TITLE" default:"Дед Мороз"`
	BadgeID    string `envconfig:"HABR_BADGE_ID" default:"santa"`
}

// ProfileConfig configures the platform profile cache.
type ProfileConfig struct {
	// RedisURL selects the shared Redis cache; when empty an in-process
	// cache is used.
	RedisURL SecretString  `envconfig:"REDIS_URL" validate:"omitempty,url"`
	CacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"60s"`
}

// EmailConfig holds email transport and rendering settings.
type EmailConfig struct {
	Provider        string `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses log"`
	FromAddress     string `envconfig:"EMAIL_FROM_ADDRESS" default:"noreply@habra-adm.ru" validate:"email"`
	FromName        string `envconfig:"EMAIL_FROM_NAME" default:"Хабра-АДМ"`
	ReplyToAddress  string `envconfig:"EMAIL_REPLY_TO" default:"support@habra-adm.ru" validate:"email"`
	ReplyToName     string `envconfig:"EMAIL_REPLY_TO_NAME" default:"Хабра-АДМ"`
	SubjectPrefix   string `envconfig:"EMAIL_SUBJECT_PREFIX" default:"Клуб анонимных Дедов Морозов на Хабре: "`
	SiteURL         string `envconfig:"SITE_URL" default:"https://habra-adm.ru" validate:"url"`
	MessageIDDomain string `envconfig:"EMAIL_MESSAGE_ID_DOMAIN" default:"habra-adm.ru"`
	SESConfigSet    string `envconfig:"SES_CONFIGURATION_SET"`
}

// QueueConfig tunes the task queue worker.
type QueueConfig struct {
	MaxRetries   int           `envconfig:"QUEUE_MAX_RETRIES" default:"3" validate:"min=0"`
	RetryBackoff time.Duration `envconfig:"QUEUE_RETRY_BACKOFF" default:"5m"`
	Lease        time.Duration `envconfig:"QUEUE_LEASE" default:"2m"`
	JobTimeout   time.Duration `envconfig:"QUEUE_JOB_TIMEOUT" default:"30s"`
	PollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"10s"`
	BatchSize    int           `envconfig:"QUEUE_BATCH_SIZE" default:"20" validate:"min=1"`
	Concurrency  int           `envconfig:"QUEUE_CONCURRENCY" default:"4" validate:"min=1"`
	// SweepGrace is how long a due job may wait for its queue message before
	// the scheduler sweep runs it.
	SweepGrace time.Duration `envconfig:"QUEUE_SWEEP_GRACE" default:"10m"`
	// Retention is how long finished jobs are kept before the sweep purges
	// them.
	Retention time.Duration `envconfig:"QUEUE_RETENTION" default:"720h"`
}

// MatchingConfig holds the season matching parameters.
type MatchingConfig struct {
	// Clusters lists country sets separated by ';', countries by ','.
	// The catch-all cluster is implicit and always last; an empty value
	// matches every participant in one catch-all ring.
	Clusters string `envconfig:"MATCH_CLUSTERS" default:"RU,BY;UA"`
}

// ClusterDefinitions parses Clusters into ordered country sets. Empty sets
// are dropped; codes are upper-cased.
func (m MatchingConfig) ClusterDefinitions() [][]string {
	var defs [][]string
	for _, group := range strings.Split(m.Clusters, ";") {
		var set []string
		for _, code := range strings.Split(group, ",") {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code != "" {
				set = append(set, code)
			}
		}
		if len(set) > 0 {
			defs = append(defs, set)
		}
	}
	return defs
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"GiftClub"`
	MetricsSink     string `envconfig:"METRICS_SINK" default:"cloudwatch" validate:"oneof=cloudwatch prometheus none"`
	MetricsAddr     string `envconfig:"METRICS_ADDR" default:":9090"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
