package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// JobMessage is the body of one queued chat job.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// DeclareQueues declares the job queue and its dead-letter queue. Failed
// jobs are dead-lettered, never retried automatically. Worker and publisher
// both call it so either may start first.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	dlq := DeadLetterQueue(queue)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlq, err)
	}

	// nack(requeue=false) routes to the DLQ through the default exchange
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	return nil
}

func DeadLetterQueue(queue string) string { return queue + ".dlq" }

// Publisher sends job ids to the worker queue with publisher confirms, so a
// nil error means the broker has taken the message.
type Publisher struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex // one confirm at a time on ch
	ch *amqp.Channel
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := DeclareQueues(ch, queue); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	body, err := EncodeJobMessage(jobID)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(cctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	acked, err := conf.WaitContext(cctx)
	if err != nil {
		return fmt.Errorf("confirm job %s: %w", jobID, err)
	}
	if !acked {
		return errors.New("broker nacked job " + jobID)
	}
	return nil
}

func EncodeJobMessage(jobID string) ([]byte, error) {
	if jobID == "" {
		return nil, errors.New("empty job id")
	}
	return json.Marshal(JobMessage{JobID: jobID})
}

// DecodeJobMessage parses a delivery body published by PublishJob.
func DecodeJobMessage(body []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return JobMessage{}, err
	}
	return m, nil
}
