package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/metrics"
	"dispatch/internal/repository"
)

// Emitter records outbound domain events. The enqueue is the durable
// part: once a row is written, the publisher owns delivery and retries
// it until it lands on the broker or exhausts its attempts. State
// mutations stay the source of truth; events are redelivered from the
// outbox, never re-derived.
type Emitter struct {
	outbox repository.OutboxRepository
}

// NewEmitter creates a new Emitter.
func NewEmitter(outbox repository.OutboxRepository) *Emitter {
	return &Emitter{outbox: outbox}
}

// Emit marshals the payload and enqueues it for publication. key groups
// related events onto one partition (orderId for order topics,
// courierId for courier topics).
func (e *Emitter) Emit(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	return e.outbox.Enqueue(ctx, &domain.OutboxEvent{
		ID:        uuid.New().String(),
		Topic:     topic,
		Key:       key,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	})
}

// PublisherConfig tunes the outbox drain loop.
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Publisher drains the outbox to the broker. Failed sends are marked
// and retried on a later poll until MaxAttempts is reached.
type Publisher struct {
	outbox   repository.OutboxRepository
	producer Producer
	config   PublisherConfig
	logger   *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPublisher creates a new outbox Publisher.
func NewPublisher(outbox repository.OutboxRepository, producer Producer, config PublisherConfig, logger *zap.Logger) *Publisher {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}
	return &Publisher{
		outbox:   outbox,
		producer: producer,
		config:   config,
		logger:   logger.With(zap.String("component", "outbox_publisher")),
		stopCh:   make(chan struct{}),
	}
}

// Run polls the outbox until the context is cancelled or Shutdown is
// called.
func (p *Publisher) Run(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started",
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("batch_size", p.config.BatchSize))

	for {
		select {
		case <-ticker.C:
			if err := p.drainBatch(ctx); err != nil {
				p.logger.Error("outbox drain failed", zap.Error(err))
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops the drain loop and closes the producer.
func (p *Publisher) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		if err := p.producer.Close(); err != nil {
			p.logger.Error("failed to close producer", zap.Error(err))
		}
	})
}

func (p *Publisher) drainBatch(ctx context.Context) error {
	events, err := p.outbox.FetchUnsent(ctx, p.config.MaxAttempts, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch unsent events: %w", err)
	}

	for _, ev := range events {
		if err := p.publishOne(ctx, ev); err != nil {
			p.logger.Warn("event publish failed",
				zap.String("event_id", ev.ID),
				zap.String("topic", ev.Topic),
				zap.Int("attempts", ev.Attempts+1),
				zap.Error(err))
		}
	}

	return nil
}

func (p *Publisher) publishOne(ctx context.Context, ev *domain.OutboxEvent) error {
	err := p.producer.SendMessage(ctx, ev.Topic, []byte(ev.Key), ev.Payload)
	if err != nil {
		metrics.EventPublishErrorsTotal.WithLabelValues(ev.Topic).Inc()
		if markErr := p.outbox.MarkFailed(ctx, ev.ID, ev.Attempts+1, err.Error()); markErr != nil {
			p.logger.Error("failed to record publish failure",
				zap.String("event_id", ev.ID), zap.Error(markErr))
		}
		return err
	}

	metrics.EventsPublishedTotal.WithLabelValues(ev.Topic).Inc()
	if err := p.outbox.MarkSent(ctx, ev.ID, time.Now().UTC()); err != nil {
		// The send succeeded; a failed mark means the event may be
		// published again on the next poll. At-least-once is the
		// contract, so log and move on.
		p.logger.Error("failed to mark event sent",
			zap.String("event_id", ev.ID), zap.Error(err))
	}
	return nil
}
