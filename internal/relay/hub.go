package relay

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dispatch/internal/metrics"
)

// Room name builders. Users tracking an order join the order room;
// each courier connection sits in its own courier room.
func OrderRoom(orderID string) string { return "order:" + orderID }

func CourierRoom(courierID string) string { return "courier:" + courierID }

// Frame is one message on a relay connection, in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewFrame builds an outbound frame, marshaling the payload.
func NewFrame(event string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	return &Frame{Event: event, Data: data}, nil
}

// Hub tracks connected clients and their room membership and fans
// frames out to rooms. All membership mutations go through the hub's
// lock; clients never touch each other.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
	logger  *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
		logger:  logger.With(zap.String("component", "relay_hub")),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = make(map[string]struct{})
	h.mu.Unlock()
	metrics.RelayConnections.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	rooms, ok := h.clients[c]
	if ok {
		for room := range rooms {
			h.removeFromRoom(c, room)
		}
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		metrics.RelayConnections.Dec()
	}
}

// Join adds a client to a room. Unknown clients are ignored; they are
// already on their way out.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.clients[c]
	if !ok {
		return
	}
	rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave removes a client from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.clients[c]; ok {
		delete(rooms, room)
	}
	h.removeFromRoom(c, room)
}

// removeFromRoom must be called with the lock held.
func (h *Hub) removeFromRoom(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish sends a frame to every client in a room. Slow clients are
// skipped, not waited on; a client that cannot keep up loses frames
// before it blocks the room.
func (h *Hub) Publish(room, event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		h.logger.Error("failed to build frame",
			zap.String("room", room),
			zap.String("event", event),
			zap.Error(err))
		return
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- raw:
		default:
			h.logger.Warn("dropping frame for slow client",
				zap.String("room", room),
				zap.String("client_id", c.identity.ID))
		}
	}
}

// OrderRoomsOfCourier lists the order rooms joined by the courier's
// connections. Used to forward the courier's position to whoever is
// tracking the order being delivered.
func (h *Hub) OrderRoomsOfCourier(courierID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var rooms []string
	seen := make(map[string]struct{})
	for c := range h.rooms[CourierRoom(courierID)] {
		for room := range h.clients[c] {
			if len(room) > 6 && room[:6] == "order:" {
				if _, dup := seen[room]; !dup {
					seen[room] = struct{}{}
					rooms = append(rooms, room)
				}
			}
		}
	}
	return rooms
}

// RoomSize reports current membership of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
