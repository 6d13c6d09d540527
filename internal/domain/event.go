package domain

import "time"

// Pub/sub topics. Inbound topics are produced by upstream collaborators;
// outbound topics feed the system of record and the live relay.
const (
	TopicOrderCreated      = "order.created"
	TopicPaymentCompleted  = "payment.completed"
	TopicOrderAssigned     = "order.assigned"
	TopicOrderStatus       = "order.status"
	TopicDriverLocation    = "driver.location"
	TopicDriverNotify      = "driver.notification"
	TopicDriverUnavailable = "driver.unavailable"
)

// NotificationNewOrderOffer is the only driver.notification type emitted.
const NotificationNewOrderOffer = "new_order_offer"

// OrderCreatedEvent is the inbound trigger for dispatch.
type OrderCreatedEvent struct {
	OrderID         string      `json:"orderId"`
	UserID          string      `json:"userId"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"totalAmount"`
	DeliveryFee     float64     `json:"deliveryFee"`
	PickupAddress   Address     `json:"pickupAddress"`
	DeliveryAddress Address     `json:"deliveryAddress"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Snapshot converts the inbound event into the order view carried by offers.
func (e OrderCreatedEvent) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		OrderID:         e.OrderID,
		UserID:          e.UserID,
		Items:           e.Items,
		TotalAmount:     e.TotalAmount,
		DeliveryFee:     e.DeliveryFee,
		PickupAddress:   e.PickupAddress,
		DeliveryAddress: e.DeliveryAddress,
		CreatedAt:       e.CreatedAt,
	}
}

// PaymentCompletedEvent is informational; no state transition hangs off it.
type PaymentCompletedEvent struct {
	OrderID     string    `json:"orderId"`
	PaymentID   string    `json:"paymentId"`
	Amount      float64   `json:"amount"`
	CompletedAt time.Time `json:"completedAt"`
}

// OrderAssignedEvent announces the winning courier for an order.
type OrderAssignedEvent struct {
	OrderID    string    `json:"orderId"`
	CourierID  string    `json:"courierId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// OrderStatusEvent announces one validated delivery transition.
type OrderStatusEvent struct {
	OrderID   string         `json:"orderId"`
	CourierID string         `json:"courierId"`
	Status    DeliveryStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

// DriverLocationEvent carries a courier position for live tracking.
type DriverLocationEvent struct {
	CourierID string    `json:"courierId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverNotificationEvent pushes a new offer to one courier's channel.
type DriverNotificationEvent struct {
	CourierID           string  `json:"courierId"`
	Type                string  `json:"type"`
	OrderID             string  `json:"orderId"`
	EstimatedDistanceKm float64 `json:"estimatedDistanceKm"`
	DeliveryFee         float64 `json:"deliveryFee"`
}

// DriverUnavailableEvent marks an order that found no candidates.
type DriverUnavailableEvent struct {
	OrderID string `json:"orderId"`
}

// OutboxEvent is a pending outbound emission. Events are written here in
// the same unit of work as the state change that produced them and
// drained to the broker with retries.
type OutboxEvent struct {
	ID        string
	Topic     string
	Key       string
	Payload   []byte
	Attempts  int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}
