package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/service"
)

func newTestOffer(orderID, courierID string, createdAt time.Time) domain.Offer {
	return domain.Offer{
		OrderID:   orderID,
		CourierID: courierID,
		Order: domain.OrderSnapshot{
			OrderID:     orderID,
			UserID:      "user-1",
			TotalAmount: 300,
			DeliveryFee: 35,
			PickupAddress: domain.Address{
				Address: "restaurant", Latitude: 12.97, Longitude: 77.59,
			},
			DeliveryAddress: domain.Address{
				Address: "home", Latitude: 12.98, Longitude: 77.60,
			},
			CreatedAt: createdAt,
		},
		EstimatedDistanceKm: 1.2,
		CreatedAt:           createdAt,
		ExpiresAt:           createdAt.Add(60 * time.Second),
	}
}

func newOfferFixture(t *testing.T) (*MockOfferStore, *MockDeliveryStore, *MockEmitter, *service.OfferService) {
	t.Helper()
	offerStore := NewMockOfferStore()
	deliveryStore := NewMockDeliveryStore()
	emitter := NewMockEmitter()
	earningRepo := NewMockEarningRepository()
	deliveryService := service.NewDeliveryService(deliveryStore, earningRepo, nil, emitter, zap.NewNop())
	offerService := service.NewOfferService(offerStore, deliveryStore, deliveryService, zap.NewNop())
	return offerStore, deliveryStore, emitter, offerService
}

func TestOfferAccept_FirstCourierWins(t *testing.T) {
	ctx := context.Background()
	offerStore, _, emitter, offerService := newOfferFixture(t)

	now := time.Now().UTC()
	offerStore.CreateOffers(ctx, []domain.Offer{
		newTestOffer("order-1", "courier-1", now),
		newTestOffer("order-1", "courier-2", now),
	})

	delivery, err := offerService.Accept(ctx, "courier-1", "order-1")
	if err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	if delivery.Status != domain.DeliveryStatusAccepted {
		t.Errorf("expected accepted, got %s", delivery.Status)
	}

	_, err = offerService.Accept(ctx, "courier-2", "order-1")
	if !errors.Is(err, service.ErrAlreadyAssigned) {
		t.Errorf("expected already assigned, got %v", err)
	}

	// Losing courier's sibling offer is gone too.
	pending, err := offerService.ListPending(ctx, "courier-2")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending offers for the loser, got %d", len(pending))
	}

	assigned := emitter.EventsForTopic(domain.TopicOrderAssigned)
	if len(assigned) != 1 {
		t.Errorf("expected exactly 1 assignment event, got %d", len(assigned))
	}
}

func TestOfferAccept_ConcurrentCouriersExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	offerStore, _, emitter, offerService := newOfferFixture(t)

	const couriers = 20
	now := time.Now().UTC()
	offers := make([]domain.Offer, 0, couriers)
	for i := 0; i < couriers; i++ {
		offers = append(offers, newTestOffer("order-1", fmt.Sprintf("courier-%d", i), now))
	}
	offerStore.CreateOffers(ctx, offers)

	var wg sync.WaitGroup
	results := make(chan error, couriers)
	for i := 0; i < couriers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := offerService.Accept(ctx, id, "order-1")
			results <- err
		}(fmt.Sprintf("courier-%d", i))
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, service.ErrAlreadyAssigned):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
	if losses != couriers-1 {
		t.Errorf("expected %d losers, got %d", couriers-1, losses)
	}

	if assigned := emitter.EventsForTopic(domain.TopicOrderAssigned); len(assigned) != 1 {
		t.Errorf("expected exactly 1 assignment event, got %d", len(assigned))
	}
	if offerStore.PendingCount() != 0 {
		t.Errorf("expected all offers retired, got %d", offerStore.PendingCount())
	}
}

func TestOfferAccept_ExpiredOfferIsGone(t *testing.T) {
	ctx := context.Background()
	offerStore, _, _, offerService := newOfferFixture(t)

	now := time.Now().UTC()
	offerStore.CreateOffers(ctx, []domain.Offer{newTestOffer("order-1", "courier-1", now)})

	// One second past the acceptance window.
	offerStore.Now = func() time.Time { return now.Add(61 * time.Second) }

	_, err := offerService.Accept(ctx, "courier-1", "order-1")
	if !errors.Is(err, service.ErrOfferNotFound) {
		t.Errorf("expected offer not found, got %v", err)
	}
}

func TestOfferAccept_BusyCourierRefused(t *testing.T) {
	ctx := context.Background()
	offerStore, deliveryStore, _, offerService := newOfferFixture(t)

	now := time.Now().UTC()
	offerStore.CreateOffers(ctx, []domain.Offer{
		newTestOffer("order-1", "courier-1", now),
		newTestOffer("order-2", "courier-1", now),
	})

	if _, err := offerService.Accept(ctx, "courier-1", "order-1"); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	// Second accept while the delivery is in flight.
	_, err := offerService.Accept(ctx, "courier-1", "order-2")
	if !errors.Is(err, service.ErrCourierBusy) {
		t.Errorf("expected courier busy, got %v", err)
	}

	// The untouched offer for order-2 is still pending for others.
	if _, taken := offerStore.Winner("order-2"); taken {
		t.Error("order-2 should not have a winner")
	}

	// Releasing the delivery does not resurrect order-1.
	deliveryStore.Delete(ctx, "courier-1")
	_, err = offerService.Accept(ctx, "courier-1", "order-1")
	if !errors.Is(err, service.ErrAlreadyAssigned) {
		t.Errorf("expected already assigned, got %v", err)
	}
}

func TestOfferAccept_FailedDeliveryStartReleasesWinnerClaim(t *testing.T) {
	ctx := context.Background()
	offerStore, deliveryStore, emitter, offerService := newOfferFixture(t)

	now := time.Now().UTC()
	offerStore.CreateOffers(ctx, []domain.Offer{
		newTestOffer("order-1", "courier-1", now),
		newTestOffer("order-1", "courier-2", now),
	})

	// Courier-1 wins the arbitration, but the delivery claim refuses the
	// start, as when a second delivery landed between the busy check and
	// the accept.
	deliveryStore.CreateError = redis.ErrDeliveryExists
	_, err := offerService.Accept(ctx, "courier-1", "order-1")
	if !errors.Is(err, service.ErrCourierBusy) {
		t.Fatalf("expected courier busy, got %v", err)
	}

	// The claim must not outlive the failed start.
	if winner, taken := offerStore.Winner("order-1"); taken {
		t.Fatalf("winner claim %q survived a failed delivery start", winner)
	}
	if assigned := emitter.EventsForTopic(domain.TopicOrderAssigned); len(assigned) != 0 {
		t.Fatalf("expected no assignment events, got %d", len(assigned))
	}

	// A redelivered order event re-offers, and another courier resolves
	// the order.
	deliveryStore.CreateError = nil
	offerStore.CreateOffers(ctx, []domain.Offer{
		newTestOffer("order-1", "courier-2", now),
	})
	if _, err := offerService.Accept(ctx, "courier-2", "order-1"); err != nil {
		t.Fatalf("accept after released claim failed: %v", err)
	}
	if assigned := emitter.EventsForTopic(domain.TopicOrderAssigned); len(assigned) != 1 {
		t.Errorf("expected exactly 1 assignment event, got %d", len(assigned))
	}
}

func TestOfferReject_RemovesOnlyThatCouriersOffer(t *testing.T) {
	ctx := context.Background()
	offerStore, _, _, offerService := newOfferFixture(t)

	now := time.Now().UTC()
	offerStore.CreateOffers(ctx, []domain.Offer{
		newTestOffer("order-1", "courier-1", now),
		newTestOffer("order-1", "courier-2", now),
	})

	if err := offerService.Reject(ctx, "courier-1", "order-1"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	// Rejecting again is a miss.
	if err := offerService.Reject(ctx, "courier-1", "order-1"); !errors.Is(err, service.ErrOfferNotFound) {
		t.Errorf("expected offer not found, got %v", err)
	}

	// The other courier can still accept.
	if _, err := offerService.Accept(ctx, "courier-2", "order-1"); err != nil {
		t.Errorf("accept after sibling reject failed: %v", err)
	}
}

func TestOfferListPending_FiltersExpired(t *testing.T) {
	ctx := context.Background()
	offerStore, _, _, offerService := newOfferFixture(t)

	now := time.Now().UTC()
	fresh := newTestOffer("order-fresh", "courier-1", now.Add(30*time.Second))
	stale := newTestOffer("order-stale", "courier-1", now.Add(-2*time.Minute))
	offerStore.CreateOffers(ctx, []domain.Offer{fresh, stale})

	pending, err := offerService.ListPending(ctx, "courier-1")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending offer, got %d", len(pending))
	}
	if pending[0].OrderID != "order-fresh" {
		t.Errorf("expected order-fresh, got %s", pending[0].OrderID)
	}
}
