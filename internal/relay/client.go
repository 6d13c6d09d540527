package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dispatch/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 8 * 1024
	sendBuffer     = 64
)

// Inbound frame events.
const (
	eventTrackOrder     = "track:order"
	eventUntrackOrder   = "untrack:order"
	eventLocationUpdate = "location:update"
	eventOfferAccept    = "offer:accept"
	eventOfferReject    = "offer:reject"
	eventDeliveryStatus = "delivery:status"
)

// Outbound frame events.
const (
	EventOrderStatusUpdate  = "order:status_update"
	EventDriverLocation     = "driver:location"
	EventNewOffer           = "order:new_offer"
	EventDriverAssigned     = "order:driver_assigned"
	EventDriverUnavailable  = "order:driver_unavailable"
	eventDeliveryStarted    = "delivery:started"
	eventDeliveryTransition = "delivery:transitioned"
	eventError              = "error"
)

// Actions is what a courier connection can do against the dispatch
// core. Calls are synchronous; the reply frame carries the outcome.
type Actions interface {
	UpdateLocation(ctx context.Context, courierID string, lat, lon float64) error
	AcceptOffer(ctx context.Context, courierID, orderID string) (*domain.ActiveDelivery, error)
	RejectOffer(ctx context.Context, courierID, orderID string) error
	AdvanceDelivery(ctx context.Context, courierID string, status domain.DeliveryStatus) (*domain.ActiveDelivery, error)
}

// Client is one authenticated relay connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity Identity
	actions  Actions
	send     chan []byte
	logger   *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, identity Identity, actions Actions, logger *zap.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		actions:  actions,
		send:     make(chan []byte, sendBuffer),
		logger: logger.With(
			zap.String("client_id", identity.ID),
			zap.String("role", identity.Role)),
	}
}

// run joins the client's own room and services the connection until it
// drops. Couriers land in their courier room immediately so offer
// pushes reach them without a subscribe step.
func (c *Client) run(ctx context.Context) {
	c.hub.register(c)
	if c.identity.Role == RoleCourier {
		c.hub.Join(c, CourierRoom(c.identity.ID))
	}

	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("connection dropped", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError(frame.Event, "malformed frame")
			continue
		}
		c.dispatch(ctx, &frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, frame *Frame) {
	switch frame.Event {
	case eventTrackOrder, eventUntrackOrder:
		var req struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.OrderID == "" {
			c.sendError(frame.Event, "orderId required")
			return
		}
		if frame.Event == eventTrackOrder {
			c.hub.Join(c, OrderRoom(req.OrderID))
		} else {
			c.hub.Leave(c, OrderRoom(req.OrderID))
		}

	case eventLocationUpdate:
		if !c.requireCourier(frame.Event) {
			return
		}
		var req struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			c.sendError(frame.Event, "malformed location")
			return
		}
		if err := c.actions.UpdateLocation(ctx, c.identity.ID, req.Latitude, req.Longitude); err != nil {
			c.sendError(frame.Event, err.Error())
		}

	case eventOfferAccept:
		if !c.requireCourier(frame.Event) {
			return
		}
		var req struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.OrderID == "" {
			c.sendError(frame.Event, "orderId required")
			return
		}
		delivery, err := c.actions.AcceptOffer(ctx, c.identity.ID, req.OrderID)
		if err != nil {
			c.sendError(frame.Event, err.Error())
			return
		}
		c.hub.Join(c, OrderRoom(delivery.OrderID))
		c.reply(eventDeliveryStarted, delivery)

	case eventOfferReject:
		if !c.requireCourier(frame.Event) {
			return
		}
		var req struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.OrderID == "" {
			c.sendError(frame.Event, "orderId required")
			return
		}
		if err := c.actions.RejectOffer(ctx, c.identity.ID, req.OrderID); err != nil {
			c.sendError(frame.Event, err.Error())
		}

	case eventDeliveryStatus:
		if !c.requireCourier(frame.Event) {
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.Status == "" {
			c.sendError(frame.Event, "status required")
			return
		}
		delivery, err := c.actions.AdvanceDelivery(ctx, c.identity.ID, domain.DeliveryStatus(req.Status))
		if err != nil {
			c.sendError(frame.Event, err.Error())
			return
		}
		if delivery.Status.Terminal() {
			c.hub.Leave(c, OrderRoom(delivery.OrderID))
		}
		c.reply(eventDeliveryTransition, delivery)

	default:
		c.sendError(frame.Event, "unknown event")
	}
}

func (c *Client) requireCourier(event string) bool {
	if c.identity.Role == RoleCourier {
		return true
	}
	c.sendError(event, "courier role required")
	return false
}

func (c *Client) reply(event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) sendError(event, message string) {
	c.reply(eventError, map[string]string{"event": event, "message": message})
}
