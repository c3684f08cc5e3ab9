package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultSpeechQueue = core.DefaultSpeechJobQueue

// Publisher is the slice of *amqp.Channel the enqueuer needs.
type Publisher interface {
	PublishWithContext(
		ctx context.Context,
		exchange string,
		key string,
		mandatory bool,
		immediate bool,
		msg amqp.Publishing,
	) error
}

// wireMessage is the JSON body published for each job.
type wireMessage struct {
	JobID          string         `json:"job_id"`
	ScriptPath     string         `json:"script_path,omitempty"`
	Parameters     map[string]any `json:"parameters"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	DedupPolicy    string         `json:"dedup_policy,omitempty"`
}

// AMQPEnqueuer publishes go-job execution messages as persistent JSON
// messages on a durable queue through the default exchange.
type AMQPEnqueuer struct {
	publisher Publisher
	queue     string
	closer    func() error
	now       func() time.Time
}

func NewAMQPEnqueuer(publisher Publisher, queueName string) (*AMQPEnqueuer, error) {
	if publisher == nil {
		return nil, fmt.Errorf("gojob: amqp publisher is required")
	}
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		queueName = DefaultSpeechQueue
	}
	return &AMQPEnqueuer{
		publisher: publisher,
		queue:     queueName,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// DialAMQPEnqueuer connects to url, declares the queue as durable and returns
// an enqueuer that owns the connection.
func DialAMQPEnqueuer(url string, queueName string) (*AMQPEnqueuer, error) {
	conn, err := amqp.Dial(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("gojob: dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gojob: open amqp channel: %w", err)
	}
	enqueuer, err := NewAMQPEnqueuer(channel, queueName)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}
	if _, err := channel.QueueDeclare(enqueuer.queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("gojob: declare queue %s: %w", enqueuer.queue, err)
	}
	enqueuer.closer = func() error {
		if err := channel.Close(); err != nil {
			_ = conn.Close()
			return err
		}
		return conn.Close()
	}
	return enqueuer, nil
}

func (e *AMQPEnqueuer) Queue() string {
	if e == nil {
		return ""
	}
	return e.queue
}

func (e *AMQPEnqueuer) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if e == nil || e.publisher == nil {
		return fmt.Errorf("gojob: amqp enqueuer is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: execution message with job id is required")
	}
	body, err := json.Marshal(wireMessage{
		JobID:          msg.JobID,
		ScriptPath:     msg.ScriptPath,
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    string(msg.DedupPolicy),
	})
	if err != nil {
		return fmt.Errorf("gojob: encode job %s: %w", msg.JobID, err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.IdempotencyKey,
		Type:         msg.JobID,
		Timestamp:    e.now(),
		Body:         body,
	}
	if err := e.publisher.PublishWithContext(ctx, "", e.queue, false, false, publishing); err != nil {
		return fmt.Errorf("gojob: publish job %s: %w", msg.JobID, err)
	}
	return nil
}

func (e *AMQPEnqueuer) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer()
}

var _ queue.Enqueuer = (*AMQPEnqueuer)(nil)
