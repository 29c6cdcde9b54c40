// Package queue publishes task queue wake-up messages to SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"giftclub/internal/types"
)

// MaxDelay is the longest delivery delay SQS accepts. Longer retry delays
// are clamped; the worker leaves a job that is not yet due for a later
// message or the sweeper.
const MaxDelay = 15 * time.Minute

// SQSSender is the SendMessage subset of the SQS client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDispatcher implements taskqueue.Dispatcher with one SQS message per job.
type SQSDispatcher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSDispatcher creates an SQSDispatcher for queueURL.
func NewSQSDispatcher(client SQSSender, queueURL string, logger *slog.Logger) *SQSDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSDispatcher{client: client, queueURL: queueURL, logger: logger}
}

// Dispatch sends a types.JobMessage for jobID, delivered after delay.
func (d *SQSDispatcher) Dispatch(ctx context.Context, jobID int64, delay time.Duration) error {
	body, err := json.Marshal(types.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("queue: marshal job message: %w", err)
	}

	delay = min(max(delay, 0), MaxDelay)
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(d.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"job_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(jobID, 10)),
			},
		},
	}

	if _, err := d.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: send wake-up for job %d: %w", jobID, err)
	}

	d.logger.DebugContext(ctx, "job wake-up sent", "job_id", jobID, "delay_s", input.DelaySeconds)
	return nil
}

// ParseJobMessage decodes the body of a wake-up message.
func ParseJobMessage(body string) (int64, error) {
	var msg types.JobMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return 0, fmt.Errorf("queue: decode job message: %w", err)
	}
	if msg.JobID <= 0 {
		return 0, fmt.Errorf("queue: job message without job_id")
	}
	return msg.JobID, nil
}
