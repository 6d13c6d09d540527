package redis

import (
	"context"

	"dispatch/internal/domain"
)

// LocationStoreInterface defines the interface for courier position and
// availability operations.
type LocationStoreInterface interface {
	UpsertPosition(ctx context.Context, courierID string, lat, lon float64) error
	MarkAvailable(ctx context.Context, courierID string) (bool, error)
	MarkUnavailable(ctx context.Context, courierID string) error
	FindNearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]NearbyCourier, error)
	GetPosition(ctx context.Context, courierID string) (lat, lon float64, ok bool, err error)
	IsAvailable(ctx context.Context, courierID string) (bool, error)
}

// OfferStoreInterface defines the interface for offer lifecycle
// operations, including the atomic acceptance arbitration.
type OfferStoreInterface interface {
	CreateOffers(ctx context.Context, offers []domain.Offer) error
	Accept(ctx context.Context, courierID, orderID string) (*domain.Offer, error)
	ReleaseWinner(ctx context.Context, orderID string) error
	Reject(ctx context.Context, courierID, orderID string) (bool, error)
	ListPending(ctx context.Context, courierID string) ([]domain.Offer, error)
	Sweep(ctx context.Context) (int, error)
}

// DeliveryStoreInterface defines the interface for active delivery
// storage with compare-and-set transitions.
type DeliveryStoreInterface interface {
	Create(ctx context.Context, d *domain.ActiveDelivery) error
	Get(ctx context.Context, courierID string) (*domain.ActiveDelivery, error)
	UpdateStatus(ctx context.Context, updated *domain.ActiveDelivery, expected domain.DeliveryStatus) error
	Delete(ctx context.Context, courierID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ OfferStoreInterface    = (*OfferStore)(nil)
	_ DeliveryStoreInterface = (*DeliveryStore)(nil)
)
