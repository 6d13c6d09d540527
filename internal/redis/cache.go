package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	orderStatusPrefix = "order:status:"
	orderStatusTTL    = 24 * time.Hour
)

// CacheStore caches the latest known order status so a client that
// reconnects after missing relay events can re-fetch current state over
// REST without touching the system of record.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// SetOrderStatus records the latest status for an order.
func (s *CacheStore) SetOrderStatus(ctx context.Context, orderID, status string) error {
	return s.client.Set(ctx, orderStatusPrefix+orderID, status, orderStatusTTL).Err()
}

// GetOrderStatus returns the cached status, or "" on a miss.
func (s *CacheStore) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	status, err := s.client.Get(ctx, orderStatusPrefix+orderID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}
