package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPQueue is a durable RabbitMQ-backed queue. Jobs survive restarts and are
// acknowledged manually once processed.
type AMQPQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	name     string
	prefetch int
	logger   *zap.Logger

	mu sync.Mutex // guards publishing on ch
}

// DialAMQPQueue connects and declares the durable queue
func DialAMQPQueue(url, name string, prefetch int, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	if prefetch < 1 {
		prefetch = 1
	}
	return &AMQPQueue{conn: conn, ch: ch, name: name, prefetch: prefetch, logger: logger}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job Job) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume opens a dedicated channel so consumer flow control does not stall
// publishers. Cancelling ctx stops new deliveries; the channel itself stays
// open until release is called so in-flight jobs can still be acknowledged.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Delivery, func() error, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open a consumer channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, err
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	out := make(chan Delivery)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				job, err := decodeJob(d.Body)
				if err != nil {
					q.logger.Error("discarding malformed push job", zap.Error(err))
					if nerr := d.Nack(false, false); nerr != nil {
						q.logger.Warn("failed to nack malformed push job", zap.Error(nerr))
					}
					continue
				}
				select {
				case out <- Delivery{Job: job, ack: func() error { return d.Ack(false) }}:
				case <-ctx.Done():
					// never handed out; redelivered once the channel closes
					return
				}
			}
		}
	}()

	release := func() error {
		<-done
		return ch.Close()
	}
	return out, release, nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return errors.Join(q.ch.Close(), q.conn.Close())
}

func encodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, err
	}
	if job.NotificationID == "" || job.Token == "" {
		return Job{}, errors.New("push job missing notification id or token")
	}
	return job, nil
}
