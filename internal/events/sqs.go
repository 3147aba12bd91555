package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

const receiveErrorPause = 5 * time.Second

// SQSAPI is the slice of the SQS client the consumer and dead-letter
// publisher use. The concrete *sqs.Client satisfies it.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Enqueuer is the dispatcher surface the consumer feeds.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev EntityChangeEvent) error
}

// SQSConsumer long-polls an SQS queue for change events and feeds them into
// the dispatcher. A message is deleted only once the dispatcher accepted it;
// when the local queue is full the message is left on SQS and comes back
// after its visibility timeout.
type SQSConsumer struct {
	client      SQSAPI
	queueURL    string
	waitSeconds int32
	enqueuer    Enqueuer
	logger      observability.Logger
}

// NewSQSConsumer creates a consumer for the given queue URL.
func NewSQSConsumer(client SQSAPI, queueURL string, waitSeconds int32, enqueuer Enqueuer, logger observability.Logger) *SQSConsumer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if waitSeconds <= 0 {
		waitSeconds = 10
	}
	return &SQSConsumer{
		client:      client,
		queueURL:    queueURL,
		waitSeconds: waitSeconds,
		enqueuer:    enqueuer,
		logger:      logger.WithPrefix("sqs"),
	}
}

// Run polls until the context is cancelled.
func (c *SQSConsumer) Run(ctx context.Context) error {
	c.logger.Info("sqs consumer starting", map[string]interface{}{
		"queue_url": c.queueURL,
	})

	for {
		if ctx.Err() != nil {
			c.logger.Info("sqs consumer stopped", nil)
			return nil
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     c.waitSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("sqs consumer stopped", nil)
				return nil
			}
			c.logger.Error("failed to receive messages", map[string]interface{}{
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
			case <-time.After(receiveErrorPause):
			}
			continue
		}

		for _, msg := range out.Messages {
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *SQSConsumer) handleMessage(ctx context.Context, msg types.Message) {
	var ev EntityChangeEvent
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &ev); err != nil {
		c.logger.Warn("dropping malformed message", map[string]interface{}{
			"message_id": aws.ToString(msg.MessageId),
			"error":      err.Error(),
		})
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	err := c.enqueuer.Enqueue(ctx, ev)
	switch {
	case err == nil:
		c.deleteMessage(ctx, msg.ReceiptHandle)
	case errors.Is(err, ErrQueueFull):
		c.logger.Warn("local queue full, leaving message for redelivery", map[string]interface{}{
			"event_id": ev.ID,
		})
	default:
		// Validation failures never heal; keeping the message would loop it.
		c.logger.Warn("dropping invalid change event", map[string]interface{}{
			"event_id": ev.ID,
			"error":    err.Error(),
		})
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.logger.Warn("failed to delete message", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// SQSDeadLetter publishes exhausted events to a dead-letter queue with the
// failure cause attached.
type SQSDeadLetter struct {
	client SQSAPI
	url    string
	logger observability.Logger
}

// NewSQSDeadLetter creates a dead-letter publisher.
func NewSQSDeadLetter(client SQSAPI, url string, logger observability.Logger) *SQSDeadLetter {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &SQSDeadLetter{client: client, url: url, logger: logger.WithPrefix("dlq")}
}

// SendToDeadLetter publishes the event and its failure cause. Publish
// failures are logged; the event is lost at that point and the log line is
// the remaining trace.
func (d *SQSDeadLetter) SendToDeadLetter(ctx context.Context, ev EntityChangeEvent, cause error) {
	body, err := json.Marshal(struct {
		Event    EntityChangeEvent `json:"event"`
		Error    string            `json:"error"`
		FailedAt time.Time         `json:"failed_at"`
	}{Event: ev, Error: cause.Error(), FailedAt: time.Now().UTC()})
	if err != nil {
		d.logger.Error("failed to marshal dead-letter entry", map[string]interface{}{
			"event_id": ev.ID,
			"error":    err.Error(),
		})
		return
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		d.logger.Error("failed to publish dead-letter entry", map[string]interface{}{
			"event_id": ev.ID,
			"error":    err.Error(),
		})
		return
	}

	d.logger.Info("event dead-lettered", map[string]interface{}{
		"event_id": ev.ID,
		"cause":    cause.Error(),
	})
}
