package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// CourierService handles courier presence: position updates, the
// availability flag, and earnings queries.
type CourierService struct {
	locations   redis.LocationStoreInterface
	earningRepo repository.EarningRepository
	publisher   Publisher
	logger      *zap.Logger
}

// NewCourierService creates a new CourierService.
func NewCourierService(
	locations redis.LocationStoreInterface,
	earningRepo repository.EarningRepository,
	publisher Publisher,
	logger *zap.Logger,
) *CourierService {
	return &CourierService{
		locations:   locations,
		earningRepo: earningRepo,
		publisher:   publisher,
		logger:      logger.With(zap.String("service", "courier")),
	}
}

// UpdateLocation records a courier's position and refreshes the
// availability window. The position is also published for live
// tracking; that publish is best effort and never fails the update.
func (s *CourierService) UpdateLocation(ctx context.Context, courierID string, lat, lon float64) error {
	if courierID == "" {
		return ErrInvalidCourierID
	}
	if !validLatLon(lat, lon) {
		return ErrInvalidLocation
	}

	if err := s.locations.UpsertPosition(ctx, courierID, lat, lon); err != nil {
		return storeError(err)
	}

	if s.publisher != nil {
		ev := domain.DriverLocationEvent{
			CourierID: courierID,
			Latitude:  lat,
			Longitude: lon,
			Timestamp: time.Now().UTC(),
		}
		payload, err := json.Marshal(ev)
		if err == nil {
			err = s.publisher.SendMessage(ctx, domain.TopicDriverLocation, []byte(courierID), payload)
		}
		if err != nil {
			s.logger.Warn("location publish failed",
				zap.String("courier_id", courierID),
				zap.Error(err))
		}
	}

	return nil
}

// SetAvailability toggles whether a courier receives offers. Going
// available requires a position: either coordinates supplied with the
// request, or a still-known position from an earlier update. Going
// unavailable removes the courier from proximity queries immediately.
func (s *CourierService) SetAvailability(ctx context.Context, courierID string, available bool, lat, lon *float64) error {
	if courierID == "" {
		return ErrInvalidCourierID
	}

	if !available {
		if err := s.locations.MarkUnavailable(ctx, courierID); err != nil {
			return storeError(err)
		}
		return nil
	}

	if lat != nil && lon != nil {
		if !validLatLon(*lat, *lon) {
			return ErrInvalidLocation
		}
		if err := s.locations.UpsertPosition(ctx, courierID, *lat, *lon); err != nil {
			return storeError(err)
		}
		return nil
	}

	ok, err := s.locations.MarkAvailable(ctx, courierID)
	if err != nil {
		return storeError(err)
	}
	if !ok {
		// No known position to come back online at.
		return ErrInvalidLocation
	}
	return nil
}

// EarningsSummary is an earnings query result for one courier.
type EarningsSummary struct {
	Earnings    []*domain.Earning `json:"earnings"`
	TotalAmount float64           `json:"totalAmount"`
	Count       int               `json:"count"`
}

// Earnings lists a courier's earnings for a period filter: "today",
// "week", "month", or empty for all time.
func (s *CourierService) Earnings(ctx context.Context, courierID, period string) (*EarningsSummary, error) {
	if courierID == "" {
		return nil, ErrInvalidCourierID
	}

	since, err := periodStart(period, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	earnings, err := s.earningRepo.ListByCourier(ctx, courierID, since)
	if err != nil {
		return nil, storeError(err)
	}

	summary := &EarningsSummary{Earnings: earnings, Count: len(earnings)}
	for _, e := range earnings {
		summary.TotalAmount += e.Amount
	}
	return summary, nil
}

// periodStart resolves a period filter to its inclusive lower bound.
// A zero time means no lower bound.
func periodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "":
		return time.Time{}, nil
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	}
	return time.Time{}, ErrInvalidPeriod
}
