package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/geo"
)

const (
	courierGeoKey          = "couriers:geo"
	courierAvailablePrefix = "courier:available:"
	availabilityTTL        = 5 * time.Minute
)

// NearbyCourier is one proximity-query result, nearest-first.
type NearbyCourier struct {
	CourierID  string
	Latitude   float64
	Longitude  float64
	DistanceKm float64
}

// LocationStore maintains courier positions and availability in Redis.
// Positions live in a GEO set; availability is a keyed flag with a TTL
// so a courier that stops reporting drops out of proximity results
// without any explicit cleanup.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpsertPosition records a courier's position and refreshes the
// availability window. Idempotent.
func (s *LocationStore) UpsertPosition(ctx context.Context, courierID string, lat, lon float64) error {
	pipe := s.client.Pipeline()
	pipe.GeoAdd(ctx, courierGeoKey, &redis.GeoLocation{
		Name:      courierID,
		Latitude:  lat,
		Longitude: lon,
	})
	pipe.Set(ctx, courierAvailablePrefix+courierID, "1", availabilityTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// MarkUnavailable removes a courier from the available set and the geo
// index, used when the courier goes offline.
func (s *LocationStore) MarkUnavailable(ctx context.Context, courierID string) error {
	pipe := s.client.Pipeline()
	pipe.ZRem(ctx, courierGeoKey, courierID)
	pipe.Del(ctx, courierAvailablePrefix+courierID)
	_, err := pipe.Exec(ctx)
	return err
}

// FindNearby returns up to limit available couriers within radiusKm of
// the given point, nearest-first. Couriers whose availability flag has
// expired are excluded even if their geo entry is still present, since
// the two records expire independently.
func (s *LocationStore) FindNearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]NearbyCourier, error) {
	results, err := s.client.GeoRadius(ctx, courierGeoKey, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return []NearbyCourier{}, nil
	}

	// Batch the availability double-check.
	pipe := s.client.Pipeline()
	checks := make([]*redis.IntCmd, len(results))
	for i, r := range results {
		checks[i] = pipe.Exists(ctx, courierAvailablePrefix+r.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	nearby := make([]NearbyCourier, 0, len(results))
	for i, r := range results {
		if checks[i].Val() == 0 {
			continue
		}
		// Distance is recomputed with the shared haversine routine so
		// ranking and display distances always agree across the system.
		nearby = append(nearby, NearbyCourier{
			CourierID:  r.Name,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			DistanceKm: geo.DistanceKm(r.Latitude, r.Longitude, lat, lon),
		})
	}

	return nearby, nil
}

// MarkAvailable refreshes the availability window without moving the
// courier. Returns false when the courier has no recorded position,
// since a courier with no position can never be judged available.
func (s *LocationStore) MarkAvailable(ctx context.Context, courierID string) (bool, error) {
	positions, err := s.client.GeoPos(ctx, courierGeoKey, courierID).Result()
	if err != nil {
		return false, err
	}
	if len(positions) == 0 || positions[0] == nil {
		return false, nil
	}
	if err := s.client.Set(ctx, courierAvailablePrefix+courierID, "1", availabilityTTL).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// GetPosition returns a courier's last-known position, or ok=false when
// the courier has never reported one.
func (s *LocationStore) GetPosition(ctx context.Context, courierID string) (lat, lon float64, ok bool, err error) {
	positions, err := s.client.GeoPos(ctx, courierGeoKey, courierID).Result()
	if err != nil {
		return 0, 0, false, err
	}
	if len(positions) == 0 || positions[0] == nil {
		return 0, 0, false, nil
	}
	return positions[0].Latitude, positions[0].Longitude, true, nil
}

// IsAvailable reports whether a courier currently holds a fresh
// availability flag.
func (s *LocationStore) IsAvailable(ctx context.Context, courierID string) (bool, error) {
	n, err := s.client.Exists(ctx, courierAvailablePrefix+courierID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
