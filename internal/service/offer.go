package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/metrics"
	"dispatch/internal/redis"
)

// OfferService handles a courier's side of the offer lifecycle:
// listing, accepting, and rejecting pending offers.
type OfferService struct {
	offers     redis.OfferStoreInterface
	deliveries redis.DeliveryStoreInterface
	delivery   *DeliveryService
	logger     *zap.Logger
}

// NewOfferService creates a new OfferService.
func NewOfferService(
	offers redis.OfferStoreInterface,
	deliveries redis.DeliveryStoreInterface,
	delivery *DeliveryService,
	logger *zap.Logger,
) *OfferService {
	return &OfferService{
		offers:     offers,
		deliveries: deliveries,
		delivery:   delivery,
		logger:     logger.With(zap.String("service", "offer")),
	}
}

// Accept resolves an offer in the courier's favor. Arbitration is
// atomic in the store: the first accept wins the order and retires the
// sibling offers, later accepts see ErrAlreadyAssigned. A courier with
// a delivery in progress cannot accept at all.
func (s *OfferService) Accept(ctx context.Context, courierID, orderID string) (*domain.ActiveDelivery, error) {
	if courierID == "" {
		return nil, ErrInvalidCourierID
	}
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	current, err := s.deliveries.Get(ctx, courierID)
	if err != nil {
		return nil, storeError(err)
	}
	if current != nil {
		return nil, ErrCourierBusy
	}

	offer, err := s.offers.Accept(ctx, courierID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, redis.ErrOrderTaken):
			return nil, ErrAlreadyAssigned
		case errors.Is(err, redis.ErrOfferGone):
			return nil, ErrOfferNotFound
		}
		return nil, storeError(err)
	}

	delivery, err := s.delivery.Start(ctx, offer)
	if err != nil {
		// The arbitration was won but no delivery backs it: the courier
		// picked up another delivery in the window since the busy check,
		// or the store dropped out mid-flight. The claim cannot stand or
		// the order stays unassignable until the winner key expires, so
		// release it and let a redelivered order event re-offer.
		s.logger.Error("accepted offer but failed to start delivery",
			zap.String("courier_id", courierID),
			zap.String("order_id", orderID),
			zap.Error(err))
		if relErr := s.offers.ReleaseWinner(ctx, orderID); relErr != nil {
			s.logger.Error("failed to release winner claim",
				zap.String("order_id", orderID),
				zap.Error(relErr))
		}
		return nil, err
	}

	metrics.OffersAcceptedTotal.Inc()
	s.logger.Info("offer accepted",
		zap.String("courier_id", courierID),
		zap.String("order_id", orderID))
	return delivery, nil
}

// Reject declines an offer for this courier only; other couriers'
// offers for the same order are untouched.
func (s *OfferService) Reject(ctx context.Context, courierID, orderID string) error {
	if courierID == "" {
		return ErrInvalidCourierID
	}
	if orderID == "" {
		return ErrInvalidOrderID
	}

	removed, err := s.offers.Reject(ctx, courierID, orderID)
	if err != nil {
		return storeError(err)
	}
	if !removed {
		return ErrOfferNotFound
	}

	metrics.OffersRejectedTotal.Inc()
	return nil
}

// ListPending returns the courier's live offers, expired ones already
// filtered out.
func (s *OfferService) ListPending(ctx context.Context, courierID string) ([]domain.Offer, error) {
	if courierID == "" {
		return nil, ErrInvalidCourierID
	}

	offers, err := s.offers.ListPending(ctx, courierID)
	if err != nil {
		return nil, storeError(err)
	}
	return offers, nil
}
