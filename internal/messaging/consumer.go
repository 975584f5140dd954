package messaging

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ErrSkip marks an event its handler will never process. Wrap it to have the event acked
// without redelivery.
var ErrSkip = errors.New("skip event")

// Handler processes one decoded event. A nil error acks the message; any other error nacks it
// for redelivery unless it wraps ErrSkip.
type Handler[T any] func(ctx context.Context, event *T) error

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	maxAttempts int
}

// WithMaxAttempts acks and drops an event once its handler failed n times. Zero keeps
// redelivering.
func WithMaxAttempts(n int) ConsumerOption {
	return func(c *consumerConfig) {
		c.maxAttempts = n
	}
}

// Consumer decodes JSON events of type T from one topic and hands them to a handler, one at
// a time.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	logger     *zap.Logger
	config     consumerConfig
	// attempts counts failures per message UUID. Only the consume loop touches it.
	attempts map[string]int
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	var config consumerConfig
	for _, opt := range opts {
		opt(&config)
	}

	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
		config:     config,
		attempts:   make(map[string]int),
		done:       make(chan struct{}),
	}
}

func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes to the topic and consumes in a background goroutine until Shutdown or ctx
// is done.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.cancel()
		close(c.done)

		return err
	}

	go c.consume(ctx, msgs)

	return nil
}

func (c *Consumer[T]) consume(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handle(ctx context.Context, msg *message.Message) {
	logger := c.logger.With(zap.String("message_id", msg.UUID))

	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logger.Error("dropping undecodable event", zap.Error(err))
		msg.Ack()

		return
	}

	err := c.handler(ctx, &event)

	switch {
	case err == nil:
		delete(c.attempts, msg.UUID)
		msg.Ack()
		logger.Debug("processed event")
	case errors.Is(err, ErrSkip):
		logger.Warn("skipping event", zap.Error(err))
		msg.Ack()
	case c.exhausted(msg.UUID):
		logger.Error("dropping event after repeated failures",
			zap.Int("attempts", c.config.maxAttempts),
			zap.Error(err),
		)
		msg.Ack()
	default:
		logger.Error("failed to handle event", zap.Error(err))
		msg.Nack()
	}
}

// exhausted records a failure of id and reports whether it used up its attempts.
func (c *Consumer[T]) exhausted(id string) bool {
	c.attempts[id]++

	if c.config.maxAttempts <= 0 || c.attempts[id] < c.config.maxAttempts {
		return false
	}

	delete(c.attempts, id)

	return true
}

// Shutdown stops consuming and waits for the message in flight.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}

	<-c.done

	return nil
}
