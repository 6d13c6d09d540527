package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dispatch/internal/domain"
)

// Bridge consumes the outbound topics and forwards each event to the
// relay room its payload addresses. The broker is the source of truth;
// the bridge is a read-only fan-out and commits as it reads.
type Bridge struct {
	reader *kafka.Reader
	hub    *Hub
	logger *zap.Logger
}

// BridgeConfig configures the relay's broker subscription.
type BridgeConfig struct {
	Brokers []string
	GroupID string
}

// NewBridge creates a bridge subscribed to the live-update topics.
func NewBridge(cfg BridgeConfig, hub *Hub, logger *zap.Logger) *Bridge {
	return &Bridge{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			GroupTopics: []string{
				domain.TopicOrderStatus,
				domain.TopicDriverLocation,
				domain.TopicDriverNotify,
				domain.TopicOrderAssigned,
				domain.TopicDriverUnavailable,
			},
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		}),
		hub:    hub,
		logger: logger.With(zap.String("component", "relay_bridge")),
	}
}

// Run forwards events until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	b.logger.Info("relay bridge started")

	for {
		msg, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				b.logger.Info("relay bridge stopped")
				return
			}
			b.logger.Error("read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		b.route(msg)
	}
}

// Close releases the broker subscription.
func (b *Bridge) Close() error {
	return b.reader.Close()
}

// routingKeys is the envelope peek used to pick the target room.
type routingKeys struct {
	OrderID   string `json:"orderId"`
	CourierID string `json:"courierId"`
}

func (b *Bridge) route(msg kafka.Message) {
	var keys routingKeys
	if err := json.Unmarshal(msg.Value, &keys); err != nil {
		b.logger.Warn("dropping malformed event",
			zap.String("topic", msg.Topic),
			zap.Error(err))
		return
	}

	var payload json.RawMessage = msg.Value

	switch msg.Topic {
	case domain.TopicOrderStatus:
		b.hub.Publish(OrderRoom(keys.OrderID), EventOrderStatusUpdate, payload)
	case domain.TopicOrderAssigned:
		b.hub.Publish(OrderRoom(keys.OrderID), EventDriverAssigned, payload)
	case domain.TopicDriverUnavailable:
		b.hub.Publish(OrderRoom(keys.OrderID), EventDriverUnavailable, payload)
	case domain.TopicDriverNotify:
		b.hub.Publish(CourierRoom(keys.CourierID), EventNewOffer, payload)
	case domain.TopicDriverLocation:
		// Position samples also reach the order rooms the courier has
		// joined, so trackers of an in-flight delivery see them live.
		b.hub.Publish(CourierRoom(keys.CourierID), EventDriverLocation, payload)
		for _, room := range b.hub.OrderRoomsOfCourier(keys.CourierID) {
			b.hub.Publish(room, EventDriverLocation, payload)
		}
	default:
		b.logger.Warn("unrouted topic", zap.String("topic", msg.Topic))
	}
}
