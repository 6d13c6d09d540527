package tests

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

func newDeliveryFixture(t *testing.T) (*MockDeliveryStore, *MockEarningRepository, *MockEmitter, *service.DeliveryService) {
	t.Helper()
	deliveryStore := NewMockDeliveryStore()
	earningRepo := NewMockEarningRepository()
	emitter := NewMockEmitter()
	svc := service.NewDeliveryService(deliveryStore, earningRepo, nil, emitter, zap.NewNop())
	return deliveryStore, earningRepo, emitter, svc
}

func startDelivery(t *testing.T, svc *service.DeliveryService, courierID, orderID string) *domain.ActiveDelivery {
	t.Helper()
	offer := newTestOffer(orderID, courierID, time.Now().UTC())
	delivery, err := svc.Start(context.Background(), &offer)
	if err != nil {
		t.Fatalf("start delivery: %v", err)
	}
	return delivery
}

func TestDeliveryLifecycle_FullWalk(t *testing.T) {
	ctx := context.Background()
	_, earningRepo, emitter, svc := newDeliveryFixture(t)
	startDelivery(t, svc, "courier-1", "order-1")

	steps := []domain.DeliveryStatus{
		domain.DeliveryStatusPickedUp,
		domain.DeliveryStatusOnTheWay,
		domain.DeliveryStatusArrived,
		domain.DeliveryStatusDelivered,
	}
	for _, step := range steps {
		delivery, err := svc.Advance(ctx, "courier-1", step)
		if err != nil {
			t.Fatalf("advance to %s: %v", step, err)
		}
		if delivery.Status != step {
			t.Errorf("expected %s, got %s", step, delivery.Status)
		}
	}

	// Timestamps recorded along the way.
	events := emitter.EventsForTopic(domain.TopicOrderStatus)
	if len(events) != len(steps) {
		t.Fatalf("expected %d status events, got %d", len(steps), len(events))
	}
	var last domain.OrderStatusEvent
	if err := json.Unmarshal(events[len(events)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal status event: %v", err)
	}
	if last.Status != domain.DeliveryStatusDelivered {
		t.Errorf("expected delivered, got %s", last.Status)
	}

	// Completion settles the earning and frees the courier.
	if got := atomic.LoadInt32(&earningRepo.CreateCallCount); got != 1 {
		t.Errorf("expected 1 earning, got %d", got)
	}
	if _, err := svc.Current(ctx, "courier-1"); !errors.Is(err, service.ErrNoActiveDelivery) {
		t.Errorf("expected no active delivery after completion, got %v", err)
	}

	earnings, err := earningRepo.ListByCourier(ctx, "courier-1", time.Time{})
	if err != nil {
		t.Fatalf("list earnings: %v", err)
	}
	if len(earnings) != 1 || earnings[0].Amount != 35 {
		t.Errorf("expected one earning of 35, got %+v", earnings)
	}
}

func TestDeliveryLifecycle_RejectsSkipsAndBackwardMoves(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newDeliveryFixture(t)
	startDelivery(t, svc, "courier-1", "order-1")

	// Skip ahead from accepted.
	for _, target := range []domain.DeliveryStatus{
		domain.DeliveryStatusOnTheWay,
		domain.DeliveryStatusArrived,
		domain.DeliveryStatusDelivered,
	} {
		if _, err := svc.Advance(ctx, "courier-1", target); !errors.Is(err, service.ErrInvalidTransition) {
			t.Errorf("advance accepted -> %s: expected invalid transition, got %v", target, err)
		}
	}

	if _, err := svc.Advance(ctx, "courier-1", domain.DeliveryStatusPickedUp); err != nil {
		t.Fatalf("advance to picked_up: %v", err)
	}

	// Backward move.
	if _, err := svc.Advance(ctx, "courier-1", domain.DeliveryStatusAccepted); !errors.Is(err, service.ErrInvalidStatus) {
		t.Errorf("expected invalid status for accepted target, got %v", err)
	}

	// Unknown status.
	if _, err := svc.Advance(ctx, "courier-1", "teleported"); !errors.Is(err, service.ErrInvalidStatus) {
		t.Errorf("expected invalid status, got %v", err)
	}

	// Repeating the current status is not a step either.
	if _, err := svc.Advance(ctx, "courier-1", domain.DeliveryStatusPickedUp); !errors.Is(err, service.ErrInvalidTransition) {
		t.Errorf("expected invalid transition on repeat, got %v", err)
	}
}

func TestDeliveryLifecycle_NoActiveDelivery(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newDeliveryFixture(t)

	if _, err := svc.Advance(ctx, "courier-1", domain.DeliveryStatusPickedUp); !errors.Is(err, service.ErrNoActiveDelivery) {
		t.Errorf("expected no active delivery, got %v", err)
	}
	if _, err := svc.Current(ctx, "courier-1"); !errors.Is(err, service.ErrNoActiveDelivery) {
		t.Errorf("expected no active delivery, got %v", err)
	}
}

func TestDeliveryLifecycle_SingleActivePerCourier(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newDeliveryFixture(t)
	startDelivery(t, svc, "courier-1", "order-1")

	second := newTestOffer("order-2", "courier-1", time.Now().UTC())
	if _, err := svc.Start(ctx, &second); !errors.Is(err, service.ErrCourierBusy) {
		t.Errorf("expected courier busy, got %v", err)
	}
}

func TestDeliveryLifecycle_ConcurrentAdvanceSingleWinner(t *testing.T) {
	ctx := context.Background()
	_, earningRepo, _, svc := newDeliveryFixture(t)
	startDelivery(t, svc, "courier-1", "order-1")

	for _, step := range []domain.DeliveryStatus{
		domain.DeliveryStatusPickedUp,
		domain.DeliveryStatusOnTheWay,
		domain.DeliveryStatusArrived,
	} {
		if _, err := svc.Advance(ctx, "courier-1", step); err != nil {
			t.Fatalf("advance to %s: %v", step, err)
		}
	}

	// Two racing completion requests; the compare-and-set admits one.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Advance(ctx, "courier-1", domain.DeliveryStatusDelivered)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, service.ErrInvalidTransition) && !errors.Is(err, service.ErrNoActiveDelivery) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 successful completion, got %d", wins)
	}
	if got := atomic.LoadInt32(&earningRepo.CreateCallCount); got != 1 {
		t.Errorf("expected exactly 1 earning, got %d", got)
	}
}

func TestDeliveryLifecycle_TimestampsRecorded(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newDeliveryFixture(t)
	startDelivery(t, svc, "courier-1", "order-1")

	delivery, err := svc.Advance(ctx, "courier-1", domain.DeliveryStatusPickedUp)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if delivery.PickedUpAt == nil {
		t.Error("expected picked up timestamp")
	}
	if delivery.DeliveredAt != nil {
		t.Error("unexpected delivered timestamp")
	}
}
