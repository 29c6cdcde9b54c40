package external

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"

	"giftclub/internal/taskqueue"
	"giftclub/internal/types"
)

// CloudWatchAPI is the PutMetricData subset of the CloudWatch client.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchJobMetrics publishes job telemetry to CloudWatch:
//   - JobOutcome, dims {Action, Result}, count
//   - JobLatency, dims {Action}, milliseconds
//   - JobQueueLag, no dims, milliseconds
//
// Publishing failures are logged and otherwise ignored.
type CloudWatchJobMetrics struct {
	client    CloudWatchAPI
	namespace string
	logger    types.Logger
}

var _ taskqueue.JobMetrics = (*CloudWatchJobMetrics)(nil)

// NewCloudWatchJobMetrics creates a CloudWatchJobMetrics. An empty namespace
// uses types.MetricNamespace.
func NewCloudWatchJobMetrics(client CloudWatchAPI, namespace string, logger types.Logger) *CloudWatchJobMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchJobMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchJobMetrics) RecordOutcome(ctx context.Context, action types.JobAction, result taskqueue.Result) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricJobOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimAction), Value: aws.String(string(action))},
			{Name: aws.String(types.DimResult), Value: aws.String(string(result))},
		},
	})
}

func (m *CloudWatchJobMetrics) RecordLatency(ctx context.Context, action types.JobAction, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricJobLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimAction), Value: aws.String(string(action))},
		},
	})
}

func (m *CloudWatchJobMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricJobQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchJobMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.Error("failed to publish job metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

// PrometheusJobMetrics exposes job telemetry as Prometheus collectors.
type PrometheusJobMetrics struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	lag      prometheus.Histogram
}

var _ taskqueue.JobMetrics = (*PrometheusJobMetrics)(nil)

// NewPrometheusJobMetrics creates the collectors and registers them with reg.
func NewPrometheusJobMetrics(reg prometheus.Registerer) *PrometheusJobMetrics {
	m := &PrometheusJobMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "giftclub",
			Name:      "job_outcomes_total",
			Help:      "Job executions by action and result.",
		}, []string{"action", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "giftclub",
			Name:      "job_duration_seconds",
			Help:      "Handler execution time by action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "giftclub",
			Name:      "job_queue_lag_seconds",
			Help:      "Delay between a job becoming due and its execution.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
	reg.MustRegister(m.outcomes, m.latency, m.lag)
	return m
}

func (m *PrometheusJobMetrics) RecordOutcome(_ context.Context, action types.JobAction, result taskqueue.Result) {
	m.outcomes.WithLabelValues(string(action), string(result)).Inc()
}

func (m *PrometheusJobMetrics) RecordLatency(_ context.Context, action types.JobAction, d time.Duration) {
	m.latency.WithLabelValues(string(action)).Observe(d.Seconds())
}

func (m *PrometheusJobMetrics) RecordQueueLag(_ context.Context, lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	m.lag.Observe(lag.Seconds())
}
