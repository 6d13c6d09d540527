package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/metrics"
	"dispatch/internal/redis"
)

const (
	searchRadiusKm = 5.0
	candidateLimit = 50
	offerWindow    = 60 * time.Second
)

// DispatchService reacts to new orders by fanning out offers to nearby
// available couriers. It does not pick a winner; acceptance arbitration
// happens in the offer store when couriers respond.
type DispatchService struct {
	locations redis.LocationStoreInterface
	offers    redis.OfferStoreInterface
	emitter   Emitter
	logger    *zap.Logger
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	locations redis.LocationStoreInterface,
	offers redis.OfferStoreInterface,
	emitter Emitter,
	logger *zap.Logger,
) *DispatchService {
	return &DispatchService{
		locations: locations,
		offers:    offers,
		emitter:   emitter,
		logger:    logger.With(zap.String("service", "dispatch")),
	}
}

// HandleOrderCreated finds available couriers near the pickup point and
// offers them the order. No candidates is a normal outcome, announced
// upstream rather than retried. A store failure propagates so the
// message is redelivered.
func (s *DispatchService) HandleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error {
	if ev.OrderID == "" {
		s.logger.Warn("order created event without order id, dropping")
		return nil
	}

	pickup := ev.PickupAddress
	if !validLatLon(pickup.Latitude, pickup.Longitude) {
		s.logger.Warn("order created event with invalid pickup coordinates, dropping",
			zap.String("order_id", ev.OrderID),
			zap.Float64("lat", pickup.Latitude),
			zap.Float64("lon", pickup.Longitude))
		return nil
	}

	candidates, err := s.locations.FindNearby(ctx, pickup.Latitude, pickup.Longitude, searchRadiusKm, candidateLimit)
	if err != nil {
		return storeError(err)
	}

	if len(candidates) == 0 {
		metrics.DispatchNoCourierTotal.Inc()
		s.logger.Info("no couriers available",
			zap.String("order_id", ev.OrderID))
		if err := s.emitter.Emit(ctx, domain.TopicDriverUnavailable, ev.OrderID, domain.DriverUnavailableEvent{
			OrderID: ev.OrderID,
		}); err != nil {
			return storeError(err)
		}
		return nil
	}

	now := time.Now().UTC()
	snapshot := ev.Snapshot()
	offers := make([]domain.Offer, 0, len(candidates))
	for _, c := range candidates {
		offers = append(offers, domain.Offer{
			OrderID:             ev.OrderID,
			CourierID:           c.CourierID,
			Order:               snapshot,
			EstimatedDistanceKm: geo.DistanceKm(pickup.Latitude, pickup.Longitude, c.Latitude, c.Longitude),
			CreatedAt:           now,
			ExpiresAt:           now.Add(offerWindow),
		})
	}

	if err := s.offers.CreateOffers(ctx, offers); err != nil {
		return storeError(err)
	}
	metrics.OffersCreatedTotal.Add(float64(len(offers)))

	for _, offer := range offers {
		if err := s.emitter.Emit(ctx, domain.TopicDriverNotify, offer.CourierID, domain.DriverNotificationEvent{
			CourierID:           offer.CourierID,
			Type:                domain.NotificationNewOrderOffer,
			OrderID:             offer.OrderID,
			EstimatedDistanceKm: offer.EstimatedDistanceKm,
			DeliveryFee:         snapshot.DeliveryFee,
		}); err != nil {
			// The offer exists either way; the courier just won't get a
			// push and has to find it by polling.
			s.logger.Error("failed to enqueue offer notification",
				zap.String("order_id", offer.OrderID),
				zap.String("courier_id", offer.CourierID),
				zap.Error(err))
		}
	}

	s.logger.Info("offers fanned out",
		zap.String("order_id", ev.OrderID),
		zap.Int("couriers", len(offers)))
	return nil
}

// HandlePaymentCompleted is informational; nothing in dispatch hangs
// off payment today.
func (s *DispatchService) HandlePaymentCompleted(ctx context.Context, ev domain.PaymentCompletedEvent) error {
	s.logger.Info("payment completed",
		zap.String("order_id", ev.OrderID),
		zap.String("payment_id", ev.PaymentID),
		zap.Float64("amount", ev.Amount))
	return nil
}
