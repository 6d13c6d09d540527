package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/metrics"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// DeliveryService owns the active-delivery lifecycle: creation on
// acceptance, validated status transitions, and settlement on
// completion.
type DeliveryService struct {
	deliveries  redis.DeliveryStoreInterface
	earningRepo repository.EarningRepository
	cache       *redis.CacheStore
	emitter     Emitter
	logger      *zap.Logger
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(
	deliveries redis.DeliveryStoreInterface,
	earningRepo repository.EarningRepository,
	cache *redis.CacheStore,
	emitter Emitter,
	logger *zap.Logger,
) *DeliveryService {
	return &DeliveryService{
		deliveries:  deliveries,
		earningRepo: earningRepo,
		cache:       cache,
		emitter:     emitter,
		logger:      logger.With(zap.String("service", "delivery")),
	}
}

// Start creates the active delivery for a freshly accepted offer and
// announces the assignment. The courier-keyed create is the claim: if
// a delivery already exists for this courier, the start is refused.
func (s *DeliveryService) Start(ctx context.Context, offer *domain.Offer) (*domain.ActiveDelivery, error) {
	now := time.Now().UTC()
	delivery := &domain.ActiveDelivery{
		OrderID:         offer.OrderID,
		CourierID:       offer.CourierID,
		Status:          domain.DeliveryStatusAccepted,
		UserID:          offer.Order.UserID,
		Items:           offer.Order.Items,
		TotalAmount:     offer.Order.TotalAmount,
		PickupAddress:   offer.Order.PickupAddress,
		DeliveryAddress: offer.Order.DeliveryAddress,
		DeliveryFee:     offer.Order.DeliveryFee,
		AcceptedAt:      now,
	}

	if err := s.deliveries.Create(ctx, delivery); err != nil {
		if errors.Is(err, redis.ErrDeliveryExists) {
			return nil, ErrCourierBusy
		}
		return nil, storeError(err)
	}

	s.cacheOrderStatus(ctx, offer.OrderID, string(domain.DeliveryStatusAccepted))

	if err := s.emitter.Emit(ctx, domain.TopicOrderAssigned, offer.OrderID, domain.OrderAssignedEvent{
		OrderID:    offer.OrderID,
		CourierID:  offer.CourierID,
		AssignedAt: now,
	}); err != nil {
		// The assignment itself is committed; the event will be missed
		// only if the outbox is also down, which is worth shouting about.
		s.logger.Error("failed to enqueue assignment event",
			zap.String("order_id", offer.OrderID),
			zap.String("courier_id", offer.CourierID),
			zap.Error(err))
	}

	return delivery, nil
}

// Advance moves the courier's active delivery one step forward. The
// target must be the single allowed successor of the current status;
// anything else is rejected without side effects. Reaching delivered
// settles the earning and releases the courier.
func (s *DeliveryService) Advance(ctx context.Context, courierID string, target domain.DeliveryStatus) (*domain.ActiveDelivery, error) {
	if courierID == "" {
		return nil, ErrInvalidCourierID
	}
	if !target.Valid() || target == domain.DeliveryStatusAccepted {
		return nil, ErrInvalidStatus
	}

	delivery, err := s.deliveries.Get(ctx, courierID)
	if err != nil {
		return nil, storeError(err)
	}
	if delivery == nil {
		return nil, ErrNoActiveDelivery
	}

	if !delivery.Status.CanTransitionTo(target) {
		s.logger.Warn("rejected status transition",
			zap.String("courier_id", courierID),
			zap.String("order_id", delivery.OrderID),
			zap.String("from", string(delivery.Status)),
			zap.String("to", string(target)))
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, delivery.Status, target)
	}

	expected := delivery.Status
	now := time.Now().UTC()
	delivery.Status = target
	switch target {
	case domain.DeliveryStatusPickedUp:
		delivery.PickedUpAt = &now
	case domain.DeliveryStatusDelivered:
		delivery.DeliveredAt = &now
	}

	if err := s.deliveries.UpdateStatus(ctx, delivery, expected); err != nil {
		var conflict *redis.StatusConflictError
		if errors.As(err, &conflict) {
			// Lost a concurrent update; the stored status moved on.
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conflict.Current, target)
		}
		if errors.Is(err, redis.ErrDeliveryMissing) {
			return nil, ErrNoActiveDelivery
		}
		return nil, storeError(err)
	}

	if target == domain.DeliveryStatusDelivered {
		s.settle(ctx, delivery)
	}

	s.cacheOrderStatus(ctx, delivery.OrderID, string(target))

	if err := s.emitter.Emit(ctx, domain.TopicOrderStatus, delivery.OrderID, domain.OrderStatusEvent{
		OrderID:   delivery.OrderID,
		CourierID: delivery.CourierID,
		Status:    target,
		Timestamp: now,
	}); err != nil {
		s.logger.Error("failed to enqueue status event",
			zap.String("order_id", delivery.OrderID),
			zap.String("status", string(target)),
			zap.Error(err))
	}

	return delivery, nil
}

// Current returns the courier's delivery in progress.
func (s *DeliveryService) Current(ctx context.Context, courierID string) (*domain.ActiveDelivery, error) {
	if courierID == "" {
		return nil, ErrInvalidCourierID
	}

	delivery, err := s.deliveries.Get(ctx, courierID)
	if err != nil {
		return nil, storeError(err)
	}
	if delivery == nil {
		return nil, ErrNoActiveDelivery
	}
	return delivery, nil
}

// settle credits the delivery fee and removes the active-delivery
// claim. The compare-and-set transition to delivered has already
// guaranteed a single caller reaches this point for the delivery.
func (s *DeliveryService) settle(ctx context.Context, delivery *domain.ActiveDelivery) {
	earning := &domain.Earning{
		ID:        uuid.New().String(),
		CourierID: delivery.CourierID,
		OrderID:   delivery.OrderID,
		Amount:    delivery.DeliveryFee,
		Status:    domain.EarningStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.earningRepo.Create(ctx, earning); err != nil {
		s.logger.Error("failed to record earning",
			zap.String("courier_id", delivery.CourierID),
			zap.String("order_id", delivery.OrderID),
			zap.Float64("amount", delivery.DeliveryFee),
			zap.Error(err))
	}

	if err := s.deliveries.Delete(ctx, delivery.CourierID); err != nil {
		s.logger.Error("failed to release delivery claim",
			zap.String("courier_id", delivery.CourierID),
			zap.Error(err))
	}

	metrics.DeliveriesCompletedTotal.Inc()
}

func (s *DeliveryService) cacheOrderStatus(ctx context.Context, orderID, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetOrderStatus(ctx, orderID, status); err != nil {
		s.logger.Warn("failed to cache order status",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}
