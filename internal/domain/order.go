package domain

import "time"

// OrderItem is one line of an order snapshot.
type OrderItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// Address is a delivery or pickup point with coordinates.
type Address struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OrderSnapshot is the immutable view of an order carried inside offers
// and active deliveries. The system-of-record order lives upstream; this
// is everything a courier needs to see.
type OrderSnapshot struct {
	OrderID         string      `json:"orderId"`
	UserID          string      `json:"userId"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"totalAmount"`
	DeliveryFee     float64     `json:"deliveryFee"`
	PickupAddress   Address     `json:"pickupAddress"`
	DeliveryAddress Address     `json:"deliveryAddress"`
	CreatedAt       time.Time   `json:"createdAt"`
}
