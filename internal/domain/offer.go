package domain

import "time"

// Offer is a time-boxed proposal of one order to one courier.
// It resolves exactly once: accepted, rejected, expired, or superseded
// by another courier winning the same order.
type Offer struct {
	OrderID             string        `json:"orderId"`
	CourierID           string        `json:"courierId"`
	Order               OrderSnapshot `json:"order"`
	EstimatedDistanceKm float64       `json:"estimatedDistanceKm"`
	CreatedAt           time.Time     `json:"createdAt"`
	ExpiresAt           time.Time     `json:"expiresAt"`
}

// Expired reports whether the offer's acceptance window has closed at
// the given instant. Expiry is wall-clock and not renewable.
func (o *Offer) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
