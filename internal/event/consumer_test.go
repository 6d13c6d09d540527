package event

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// stubOrderHandler fails HandleOrderCreated a configured number of
// times before succeeding, counting every invocation.
type stubOrderHandler struct {
	calls    int32
	failures int32
	err      error
}

func (h *stubOrderHandler) HandleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error {
	n := atomic.AddInt32(&h.calls, 1)
	if n <= atomic.LoadInt32(&h.failures) {
		return h.err
	}
	return nil
}

func (h *stubOrderHandler) HandlePaymentCompleted(ctx context.Context, ev domain.PaymentCompletedEvent) error {
	atomic.AddInt32(&h.calls, 1)
	return nil
}

func orderCreatedMessage() kafka.Message {
	return kafka.Message{
		Topic: domain.TopicOrderCreated,
		Value: []byte(`{"orderId":"order-1","pickupAddress":{"latitude":12.9,"longitude":77.5}}`),
	}
}

func newTestConsumer(h OrderHandler) *Consumer {
	return &Consumer{
		handler:    h,
		logger:     zap.NewNop(),
		retryDelay: time.Millisecond,
	}
}

func TestConsumer_RetriesSameMessageUntilStoreRecovers(t *testing.T) {
	h := &stubOrderHandler{
		failures: 2,
		err:      service.ErrStoreUnavailable,
	}
	c := newTestConsumer(h)

	if err := c.process(context.Background(), orderCreatedMessage()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := atomic.LoadInt32(&h.calls); got != 3 {
		t.Errorf("expected the message handled 3 times (2 failures + success), got %d", got)
	}
}

func TestConsumer_DoesNotRetryNonTransientFailures(t *testing.T) {
	h := &stubOrderHandler{
		failures: 100,
		err:      errors.New("no courier for this region"),
	}
	c := newTestConsumer(h)

	if err := c.process(context.Background(), orderCreatedMessage()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := atomic.LoadInt32(&h.calls); got != 1 {
		t.Errorf("expected a single handling attempt, got %d", got)
	}
}

func TestConsumer_RetryStopsOnContextCancel(t *testing.T) {
	h := &stubOrderHandler{
		failures: 1 << 30,
		err:      service.ErrStoreUnavailable,
	}
	c := newTestConsumer(h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.process(ctx, orderCreatedMessage()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestConsumer_SkipsMalformedPayloads(t *testing.T) {
	h := &stubOrderHandler{}
	c := newTestConsumer(h)

	msg := kafka.Message{Topic: domain.TopicOrderCreated, Value: []byte("{not json")}
	if err := c.process(context.Background(), msg); err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := atomic.LoadInt32(&h.calls); got != 0 {
		t.Errorf("malformed payload reached the handler %d times", got)
	}
}
