package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// EarningRepository defines storage for courier earnings.
type EarningRepository interface {
	Create(ctx context.Context, earning *domain.Earning) error
	ListByCourier(ctx context.Context, courierID string, since time.Time) ([]*domain.Earning, error)
}
