package domain

import "time"

// CourierPosition is the last-known GPS fix for a courier.
// It is overwritten on every location update and considered stale
// once the availability window has lapsed without a refresh.
type CourierPosition struct {
	CourierID string
	Latitude  float64
	Longitude float64
	UpdatedAt time.Time
}

// Earning is a single payout line for a completed delivery.
type Earning struct {
	ID        string
	CourierID string
	OrderID   string
	Amount    float64
	Status    string
	CreatedAt time.Time
}

// EarningStatusCompleted marks an earning that has been credited.
const EarningStatusCompleted = "completed"
