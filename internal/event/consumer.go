package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// OrderHandler receives inbound upstream events.
type OrderHandler interface {
	HandleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error
	HandlePaymentCompleted(ctx context.Context, ev domain.PaymentCompletedEvent) error
}

const consumerRetryDelay = 2 * time.Second

// Consumer reads inbound topics from the broker and hands each message
// to the dispatch coordinator. A message is retried in place while the
// store is unavailable and its offset committed only once it lands, so
// a transient outage delays dispatch instead of losing the order.
type Consumer struct {
	reader  *kafka.Reader
	handler OrderHandler
	logger  *zap.Logger

	// retryDelay paces in-place retries; tests shorten it.
	retryDelay time.Duration
}

// ConsumerConfig configures the inbound consumer group.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
}

// NewConsumer creates a consumer subscribed to order.created and
// payment.completed.
func NewConsumer(cfg ConsumerConfig, handler OrderHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			GroupTopics: []string{domain.TopicOrderCreated, domain.TopicPaymentCompleted},
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
		}),
		handler:    handler,
		logger:     logger.With(zap.String("component", "order_consumer")),
		retryDelay: consumerRetryDelay,
	}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("order consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", zap.Error(err))
		}
	}
}

// process handles one message, retrying in place while the store is
// unavailable. The reader's in-process position already sits past this
// message, so fetching the next one before this one lands would let a
// later commit cover the skipped offset and drop the order for good.
// Returns non-nil only when the context is cancelled mid-retry.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, service.ErrStoreUnavailable) {
			c.logger.Error("message handling failed, skipping",
				zap.String("topic", msg.Topic), zap.Error(err))
			return nil
		}

		c.logger.Warn("store unavailable, retrying message",
			zap.String("topic", msg.Topic), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case domain.TopicOrderCreated:
		var ev domain.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Error("malformed order.created payload", zap.Error(err))
			return nil
		}
		return c.handler.HandleOrderCreated(ctx, ev)
	case domain.TopicPaymentCompleted:
		var ev domain.PaymentCompletedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Error("malformed payment.completed payload", zap.Error(err))
			return nil
		}
		return c.handler.HandlePaymentCompleted(ctx, ev)
	default:
		c.logger.Warn("message on unexpected topic", zap.String("topic", msg.Topic))
		return nil
	}
}
