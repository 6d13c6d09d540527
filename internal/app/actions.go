package app

import (
	"context"

	"dispatch/internal/domain"
	"dispatch/internal/relay"
	"dispatch/internal/service"
)

// relayActions adapts the dispatch services to the relay's courier
// action surface, so frames on a socket hit the same code path as the
// HTTP API.
type relayActions struct {
	courierService  *service.CourierService
	offerService    *service.OfferService
	deliveryService *service.DeliveryService
}

// NewRelayActions creates the relay action adapter.
func NewRelayActions(
	courierService *service.CourierService,
	offerService *service.OfferService,
	deliveryService *service.DeliveryService,
) relay.Actions {
	return &relayActions{
		courierService:  courierService,
		offerService:    offerService,
		deliveryService: deliveryService,
	}
}

func (a *relayActions) UpdateLocation(ctx context.Context, courierID string, lat, lon float64) error {
	return a.courierService.UpdateLocation(ctx, courierID, lat, lon)
}

func (a *relayActions) AcceptOffer(ctx context.Context, courierID, orderID string) (*domain.ActiveDelivery, error) {
	return a.offerService.Accept(ctx, courierID, orderID)
}

func (a *relayActions) RejectOffer(ctx context.Context, courierID, orderID string) error {
	return a.offerService.Reject(ctx, courierID, orderID)
}

func (a *relayActions) AdvanceDelivery(ctx context.Context, courierID string, status domain.DeliveryStatus) (*domain.ActiveDelivery, error) {
	return a.deliveryService.Advance(ctx, courierID, status)
}
