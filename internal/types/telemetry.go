package types

// Telemetry metric names. Both the CloudWatch and Prometheus sinks use them.
const (
	MetricJobOutcome  = "JobOutcome"
	MetricJobLatency  = "JobLatency"
	MetricJobQueueLag = "JobQueueLag"

	DimAction = "Action"
	DimResult = "Result"

	MetricNamespace = "GiftClub"
)
