package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/domain"
)

// memOutbox is an in-memory outbox for publisher tests.
type memOutbox struct {
	mu   sync.Mutex
	rows map[string]*domain.OutboxEvent
}

func newMemOutbox() *memOutbox {
	return &memOutbox{rows: make(map[string]*domain.OutboxEvent)}
}

func (m *memOutbox) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *event
	m.rows[event.ID] = &copy
	return nil
}

func (m *memOutbox) FetchUnsent(ctx context.Context, maxAttempts, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.OutboxEvent
	for _, row := range m.rows {
		if row.SentAt == nil && row.Attempts < maxAttempts {
			copy := *row
			result = append(result, &copy)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (m *memOutbox) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		t := sentAt
		row.SentAt = &t
	}
	return nil
}

func (m *memOutbox) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.Attempts = attempts
		row.LastError = lastError
	}
	return nil
}

func (m *memOutbox) row(id string) domain.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// flakyProducer fails the first n sends, then succeeds.
type flakyProducer struct {
	mu       sync.Mutex
	failures int
	sent     []string
}

func (p *flakyProducer) SendMessage(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, topic)
	return nil
}

func (p *flakyProducer) Close() error { return nil }

func (p *flakyProducer) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func TestEmitter_EnqueuesMarshaledPayload(t *testing.T) {
	outbox := newMemOutbox()
	emitter := NewEmitter(outbox)

	err := emitter.Emit(context.Background(), domain.TopicOrderAssigned, "order-1", domain.OrderAssignedEvent{
		OrderID:   "order-1",
		CourierID: "courier-1",
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows, err := outbox.FetchUnsent(context.Background(), 10, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 unsent row, got %d (err %v)", len(rows), err)
	}
	if rows[0].Topic != domain.TopicOrderAssigned || rows[0].Key != "order-1" {
		t.Errorf("row mismatch: %+v", rows[0])
	}
	if len(rows[0].Payload) == 0 {
		t.Error("expected marshaled payload")
	}
}

func TestPublisher_DrainsAndMarksSent(t *testing.T) {
	outbox := newMemOutbox()
	producer := &flakyProducer{}
	emitter := NewEmitter(outbox)
	publisher := NewPublisher(outbox, producer, PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		MaxAttempts:  5,
	}, zap.NewNop())

	for _, id := range []string{"order-1", "order-2", "order-3"} {
		if err := emitter.Emit(context.Background(), domain.TopicOrderStatus, id, domain.OrderStatusEvent{OrderID: id}); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go publisher.Run(ctx)

	deadline := time.After(2 * time.Second)
	for producer.sentCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out, sent %d of 3", producer.sentCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	publisher.Shutdown()

	rows, _ := outbox.FetchUnsent(context.Background(), 5, 10)
	if len(rows) != 0 {
		t.Errorf("expected all rows sent, %d still unsent", len(rows))
	}
}

func TestPublisher_RetriesFailedSends(t *testing.T) {
	outbox := newMemOutbox()
	producer := &flakyProducer{failures: 2}
	emitter := NewEmitter(outbox)
	publisher := NewPublisher(outbox, producer, PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		MaxAttempts:  5,
	}, zap.NewNop())

	if err := emitter.Emit(context.Background(), domain.TopicOrderStatus, "order-1", domain.OrderStatusEvent{OrderID: "order-1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go publisher.Run(ctx)

	deadline := time.After(2 * time.Second)
	for producer.sentCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("event never delivered after transient failures")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	publisher.Shutdown()
}

func TestPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	outbox := newMemOutbox()
	producer := &flakyProducer{failures: 1000}
	emitter := NewEmitter(outbox)
	publisher := NewPublisher(outbox, producer, PublisherConfig{
		PollInterval: 5 * time.Millisecond,
		BatchSize:    10,
		MaxAttempts:  3,
	}, zap.NewNop())

	if err := emitter.Emit(context.Background(), domain.TopicOrderStatus, "order-1", domain.OrderStatusEvent{OrderID: "order-1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	var id string
	rows, _ := outbox.FetchUnsent(context.Background(), 3, 10)
	id = rows[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	go publisher.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		row := outbox.row(id)
		if row.Attempts >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("attempts never reached the cap, at %d", row.Attempts)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	publisher.Shutdown()

	// The exhausted row stays out of future fetches.
	remaining, _ := outbox.FetchUnsent(context.Background(), 3, 10)
	if len(remaining) != 0 {
		t.Errorf("expected exhausted row excluded, got %d rows", len(remaining))
	}
	if row := outbox.row(id); row.LastError == "" {
		t.Error("expected last error recorded")
	}
}
