package domain

import "time"

// DeliveryStatus represents the current stage of an active delivery.
type DeliveryStatus string

const (
	DeliveryStatusAccepted DeliveryStatus = "accepted"
	DeliveryStatusPickedUp DeliveryStatus = "picked_up"
	DeliveryStatusOnTheWay DeliveryStatus = "on_the_way"
	DeliveryStatusArrived  DeliveryStatus = "arrived"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

// deliveryTransitions is the single-step transition table. No skips,
// no backward moves, nothing out of delivered.
var deliveryTransitions = map[DeliveryStatus]DeliveryStatus{
	DeliveryStatusAccepted: DeliveryStatusPickedUp,
	DeliveryStatusPickedUp: DeliveryStatusOnTheWay,
	DeliveryStatusOnTheWay: DeliveryStatusArrived,
	DeliveryStatusArrived:  DeliveryStatusDelivered,
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusAccepted, DeliveryStatusPickedUp, DeliveryStatusOnTheWay,
		DeliveryStatusArrived, DeliveryStatusDelivered:
		return true
	}
	return false
}

// Terminal reports whether s ends the delivery lifecycle.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered
}

// CanTransitionTo reports whether next is the single allowed successor of s.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	return deliveryTransitions[s] == next && next != ""
}

// ActiveDelivery is the one in-progress delivery owned by a courier.
// It is created when an offer is accepted and removed on reaching
// delivered. Mutated only through validated transitions.
type ActiveDelivery struct {
	OrderID         string         `json:"orderId"`
	CourierID       string         `json:"courierId"`
	Status          DeliveryStatus `json:"status"`
	UserID          string         `json:"userId"`
	Items           []OrderItem    `json:"items"`
	TotalAmount     float64        `json:"totalAmount"`
	PickupAddress   Address        `json:"pickupAddress"`
	DeliveryAddress Address        `json:"deliveryAddress"`
	DeliveryFee     float64        `json:"deliveryFee"`
	AcceptedAt      time.Time      `json:"acceptedAt"`
	PickedUpAt      *time.Time     `json:"pickedUpAt,omitempty"`
	DeliveredAt     *time.Time     `json:"deliveredAt,omitempty"`
}
