package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"strconv"
	"sync"
	"time"
)

// Ensure JobSignal implements the repository interface at compile time.
var _ repo.JobSignal = (*JobSignal)(nil)

// Constants for the wake-up topology. A wake-up waits in a delay queue until its
// per-message TTL expires, then dead-letters into the due queue workers consume.
const (
	WaitExchange  = "jobs.wait.exchange"
	RetryExchange = "jobs.retry.exchange"
	DueExchange   = "jobs.due.exchange"

	DueQueue   = "jobs.queue.due"
	WaitQueue  = "jobs.wait.queue.delay"
	RetryQueue = "jobs.retry.queue.delay"

	Direct = "direct"
)

// wakeup is the message body. Workers only use it as a hint to claim;
// the job store decides which ticket they actually get.
type wakeup struct {
	JobID string    `json:"job_id"`
	DueAt time.Time `json:"due_at"`
}

// JobSignal publishes delayed wake-ups and consumes them for the worker pool.
type JobSignal struct {
	conn   *amqp.Connection
	mu     sync.Mutex // guards ch, channels are not safe for concurrent publishing
	ch     *amqp.Channel
	logger zerolog.Logger
}

// NewJobSignal opens a publishing channel on the shared connection and declares the topology.
func NewJobSignal(conn *amqp.Connection, logger *zerolog.Logger) (*JobSignal, error) {
	channel, err := conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("storage: rabbitMQ: failed to open a channel")
		return nil, fmt.Errorf("storage: rabbitMQ: failed to open a channel: %w", err)
	}

	s := &JobSignal{
		conn:   conn,
		ch:     channel,
		logger: logger.With().Str("component", "rabbitmq_signal").Logger(),
	}

	if err = declareTopology(channel); err != nil {
		s.logger.Error().Err(err).Msg("storage: rabbitMQ: failed to set up topology")
		_ = channel.Close()
		return nil, fmt.Errorf("storage: rabbitMQ: failed to set up topology: %w", err)
	}

	return s, nil
}

// declareTopology declares all necessary exchanges and queues. It is idempotent.
func declareTopology(ch *amqp.Channel) error {
	for _, name := range []string{DueExchange, WaitExchange, RetryExchange} {
		if err := ch.ExchangeDeclare(name, Direct, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	if _, err := ch.QueueDeclare(DueQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", DueQueue, err)
	}
	delayArgs := amqp.Table{"x-dead-letter-exchange": DueExchange}
	for _, name := range []string{WaitQueue, RetryQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, delayArgs); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	bindings := []struct{ queue, exchange string }{
		{DueQueue, DueExchange},
		{WaitQueue, WaitExchange},
		{RetryQueue, RetryExchange},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, "", b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// Notify publishes a wake-up that becomes visible at job.DueAt.
// First attempts go through the wait exchange, retries through the retry exchange.
func (s *JobSignal) Notify(ctx context.Context, job *model.Job) error {
	body, err := json.Marshal(wakeup{JobID: job.ID, DueAt: job.DueAt})
	if err != nil {
		return fmt.Errorf("failed to marshal wake-up: %w", err)
	}

	delay := time.Until(job.DueAt)
	if delay < 0 {
		delay = 0
	}

	exchange := WaitExchange
	if job.Attempt > 0 {
		exchange = RetryExchange
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		MessageId:    job.ID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.PublishWithContext(ctx, exchange, "", false, false, msg); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to publish wake-up")
		return fmt.Errorf("rabbitmq: publish wake-up: %w", err)
	}
	return nil
}

// Wakeups consumes the due queue on a dedicated channel. The returned channel is
// closed when ctx is done or the broker closes the consumer.
func (s *JobSignal) Wakeups(ctx context.Context) (<-chan struct{}, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open consumer channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: set qos: %w", err)
	}

	tag := "worker-" + uuid.NewString()
	msgs, err := ch.Consume(
		DueQueue,
		tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: register consumer: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					s.logger.Warn().Msg("wake-up consumer closed by broker")
					return
				}
				select {
				case out <- struct{}{}:
				default:
					// A wake-up is already pending, one claim pass serves both.
				}
				_ = msg.Ack(false)
			}
		}
	}()

	s.logger.Info().Str("consumer_tag", tag).Msg("consuming wake-ups")
	return out, nil
}

// Close shuts down the publishing channel. The connection is managed by Fx.
func (s *JobSignal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return s.ch.Close()
	}
	return nil
}
