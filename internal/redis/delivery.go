package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

const (
	courierDeliveryPrefix = "courier:delivery:"

	// A delivery that never reaches delivered still decays eventually so
	// a crashed courier does not stay busy forever.
	deliveryTTL = 24 * time.Hour
)

func deliveryKey(courierID string) string {
	return courierDeliveryPrefix + courierID
}

// ErrDeliveryExists is returned by Create when the courier already owns
// an active delivery.
var ErrDeliveryExists = fmt.Errorf("active delivery exists")

// ErrDeliveryMissing is returned by UpdateStatus when the courier has no
// active delivery.
var ErrDeliveryMissing = fmt.Errorf("no active delivery")

// StatusConflictError is returned by UpdateStatus when the stored status
// no longer matches the expected one, meaning a concurrent transition
// won.
type StatusConflictError struct {
	Current domain.DeliveryStatus
}

func (e *StatusConflictError) Error() string {
	return "delivery status conflict: current is " + string(e.Current)
}

// updateStatusScript compare-and-swaps on the status field embedded in
// the delivery document. Two concurrent advances from the same starting
// state cannot both succeed.
var updateStatusScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
  return "missing"
end
local doc = cjson.decode(cur)
if doc.status ~= ARGV[1] then
  return "conflict:" .. doc.status
end
redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
return "ok"
`)

// DeliveryStore keeps the single active delivery per courier in Redis
// so the single-active-delivery invariant holds across process
// instances, not just within one process's memory.
type DeliveryStore struct {
	client *redis.Client
}

// NewDeliveryStore creates a new DeliveryStore.
func NewDeliveryStore(client *redis.Client) *DeliveryStore {
	return &DeliveryStore{client: client}
}

// Create claims the courier's delivery slot. The SETNX claim is the
// arbitration: a courier already holding a delivery gets
// ErrDeliveryExists no matter how the calls interleave.
func (s *DeliveryStore) Create(ctx context.Context, d *domain.ActiveDelivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery %s: %w", d.OrderID, err)
	}

	set, err := s.client.SetNX(ctx, deliveryKey(d.CourierID), payload, deliveryTTL).Result()
	if err != nil {
		return err
	}
	if !set {
		return ErrDeliveryExists
	}
	return nil
}

// Get returns the courier's active delivery, or nil when there is none.
func (s *DeliveryStore) Get(ctx context.Context, courierID string) (*domain.ActiveDelivery, error) {
	payload, err := s.client.Get(ctx, deliveryKey(courierID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d domain.ActiveDelivery
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("unmarshal delivery for %s: %w", courierID, err)
	}
	return &d, nil
}

// UpdateStatus replaces the delivery document only if its stored status
// still equals expected. On a lost race it returns StatusConflictError
// carrying the status that won.
func (s *DeliveryStore) UpdateStatus(ctx context.Context, updated *domain.ActiveDelivery, expected domain.DeliveryStatus) error {
	payload, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("marshal delivery %s: %w", updated.OrderID, err)
	}

	res, err := updateStatusScript.Run(ctx, s.client,
		[]string{deliveryKey(updated.CourierID)},
		string(expected), string(payload),
	).Text()
	if err != nil {
		return err
	}

	switch {
	case res == "ok":
		return nil
	case res == "missing":
		return ErrDeliveryMissing
	case strings.HasPrefix(res, "conflict:"):
		return &StatusConflictError{Current: domain.DeliveryStatus(strings.TrimPrefix(res, "conflict:"))}
	default:
		return fmt.Errorf("unexpected update status reply: %s", res)
	}
}

// Delete releases the courier's delivery slot, making them eligible for
// new offers.
func (s *DeliveryStore) Delete(ctx context.Context, courierID string) error {
	return s.client.Del(ctx, deliveryKey(courierID)).Err()
}
