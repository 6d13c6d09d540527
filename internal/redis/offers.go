package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

const (
	offerTTL = 60 * time.Second

	// Grouping sets outlive the offers themselves by a margin so the
	// accept script can still enumerate siblings right at the deadline.
	offerSetTTL = 2 * time.Minute

	// The winner claim guards against a late duplicate order.created
	// redelivery re-opening a decided order.
	winnerTTL = 24 * time.Hour
)

func offerKey(orderID, courierID string) string {
	return "offer:" + orderID + ":" + courierID
}

func orderOffersKey(orderID string) string {
	return "order:" + orderID + ":offers"
}

func courierOffersKey(courierID string) string {
	return "courier:" + courierID + ":offers"
}

func winnerKey(orderID string) string {
	return "order:" + orderID + ":winner"
}

// Accept outcomes reported by the acceptance script.
const (
	acceptOK              = "ok"
	acceptAlreadyAssigned = "already_assigned"
	acceptNotFound        = "not_found"
)

// ErrOfferGone is returned by Accept when the offer is absent, already
// resolved, or expired. The store does not distinguish the three.
var ErrOfferGone = fmt.Errorf("offer gone")

// ErrOrderTaken is returned by Accept when another courier already won
// the order.
var ErrOrderTaken = fmt.Errorf("order taken")

// acceptScript arbitrates concurrent acceptances for one order. It runs
// atomically inside Redis: the first caller to reach it claims the
// winner key and wipes every sibling offer; every later caller sees the
// claim and loses. The application never does a read-then-write here.
var acceptScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {"already_assigned", ""}
end
local payload = redis.call("GET", KEYS[2])
if not payload then
  return {"not_found", ""}
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[4])
local siblings = redis.call("SMEMBERS", KEYS[3])
for _, cid in ipairs(siblings) do
  redis.call("DEL", ARGV[2] .. cid)
  redis.call("SREM", "courier:" .. cid .. ":offers", ARGV[3])
end
redis.call("DEL", KEYS[3])
return {"ok", payload}
`)

// OfferStore keeps pending offers in Redis. Offer documents carry their
// own 60 second TTL, so expiry needs no timers: an expired offer simply
// stops existing. Grouping sets per order and per courier support
// sibling invalidation and pending-offer listings.
type OfferStore struct {
	client *redis.Client
}

// NewOfferStore creates a new OfferStore.
func NewOfferStore(client *redis.Client) *OfferStore {
	return &OfferStore{client: client}
}

// CreateOffers stores one offer per candidate in a single batch. All
// offers for the order become visible together.
func (s *OfferStore) CreateOffers(ctx context.Context, offers []domain.Offer) error {
	if len(offers) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for i := range offers {
		o := &offers[i]
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal offer %s/%s: %w", o.OrderID, o.CourierID, err)
		}
		pipe.Set(ctx, offerKey(o.OrderID, o.CourierID), payload, offerTTL)
		pipe.SAdd(ctx, orderOffersKey(o.OrderID), o.CourierID)
		pipe.SAdd(ctx, courierOffersKey(o.CourierID), o.OrderID)
	}
	pipe.Expire(ctx, orderOffersKey(offers[0].OrderID), offerSetTTL)
	for i := range offers {
		pipe.Expire(ctx, courierOffersKey(offers[i].CourierID), offerSetTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Accept atomically resolves the race for an order. Exactly one courier
// can succeed; everyone else gets ErrOrderTaken. A missing or expired
// offer yields ErrOfferGone. On success all sibling offers are removed
// in the same atomic step.
func (s *OfferStore) Accept(ctx context.Context, courierID, orderID string) (*domain.Offer, error) {
	keys := []string{
		winnerKey(orderID),
		offerKey(orderID, courierID),
		orderOffersKey(orderID),
	}
	args := []any{
		courierID,
		"offer:" + orderID + ":",
		orderID,
		int(winnerTTL.Seconds()),
	}

	raw, err := acceptScript.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return nil, err
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 2 {
		return nil, fmt.Errorf("unexpected accept reply: %v", raw)
	}

	switch reply[0] {
	case acceptOK:
		payload, _ := reply[1].(string)
		var offer domain.Offer
		if err := json.Unmarshal([]byte(payload), &offer); err != nil {
			return nil, fmt.Errorf("unmarshal accepted offer: %w", err)
		}
		return &offer, nil
	case acceptAlreadyAssigned:
		return nil, ErrOrderTaken
	case acceptNotFound:
		return nil, ErrOfferGone
	default:
		return nil, fmt.Errorf("unexpected accept status: %v", reply[0])
	}
}

// ReleaseWinner drops the winner claim for an order. Called when a won
// acceptance cannot be backed by a delivery, so a later accept or a
// redelivered order event can still resolve the order instead of
// hitting a claim with nothing behind it.
func (s *OfferStore) ReleaseWinner(ctx context.Context, orderID string) error {
	return s.client.Del(ctx, winnerKey(orderID)).Err()
}

// Reject removes a single courier's offer. Siblings are untouched.
func (s *OfferStore) Reject(ctx context.Context, courierID, orderID string) (bool, error) {
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, offerKey(orderID, courierID))
	pipe.SRem(ctx, orderOffersKey(orderID), courierID)
	pipe.SRem(ctx, courierOffersKey(courierID), orderID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

// ListPending returns the courier's live offers, lazily evicting any
// whose document has expired out from under the grouping set.
func (s *OfferStore) ListPending(ctx context.Context, courierID string) ([]domain.Offer, error) {
	orderIDs, err := s.client.SMembers(ctx, courierOffersKey(courierID)).Result()
	if err != nil {
		return nil, err
	}
	if len(orderIDs) == 0 {
		return []domain.Offer{}, nil
	}

	pipe := s.client.Pipeline()
	gets := make([]*redis.StringCmd, len(orderIDs))
	for i, orderID := range orderIDs {
		gets[i] = pipe.Get(ctx, offerKey(orderID, courierID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	now := time.Now()
	offers := make([]domain.Offer, 0, len(orderIDs))
	var stale []string
	for i, orderID := range orderIDs {
		payload, err := gets[i].Bytes()
		if err == redis.Nil {
			stale = append(stale, orderID)
			continue
		}
		if err != nil {
			return nil, err
		}

		var offer domain.Offer
		if err := json.Unmarshal(payload, &offer); err != nil {
			stale = append(stale, orderID)
			continue
		}
		if offer.Expired(now) {
			stale = append(stale, orderID)
			continue
		}
		offers = append(offers, offer)
	}

	if len(stale) > 0 {
		members := make([]any, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		_ = s.client.SRem(ctx, courierOffersKey(courierID), members...).Err()
	}

	return offers, nil
}

// Sweep walks courier offer sets and evicts members whose offer document
// has expired, bounding leaked set entries. Returns the number of
// members removed. The sweep is an optimization; correctness never
// depends on it.
func (s *OfferStore) Sweep(ctx context.Context) (int, error) {
	var removed int
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, "courier:*:offers", 100).Result()
		if err != nil {
			return removed, err
		}

		for _, setKey := range keys {
			orderIDs, err := s.client.SMembers(ctx, setKey).Result()
			if err != nil {
				return removed, err
			}
			courierID := setKey[len("courier:") : len(setKey)-len(":offers")]
			for _, orderID := range orderIDs {
				exists, err := s.client.Exists(ctx, offerKey(orderID, courierID)).Result()
				if err != nil {
					return removed, err
				}
				if exists == 0 {
					if err := s.client.SRem(ctx, setKey, orderID).Err(); err != nil {
						return removed, err
					}
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
