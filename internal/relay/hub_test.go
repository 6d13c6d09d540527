package relay

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(hub *Hub, id, role string) *Client {
	c := newClient(hub, nil, Identity{ID: id, Role: role}, nil, zap.NewNop())
	hub.register(c)
	return c
}

func receiveFrame(t *testing.T, c *Client) *Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return &frame
	default:
		t.Fatal("expected a frame, send queue empty")
		return nil
	}
}

func TestHub_PublishReachesRoomMembersOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())
	tracker := newTestClient(hub, "user-1", RoleUser)
	bystander := newTestClient(hub, "user-2", RoleUser)

	hub.Join(tracker, OrderRoom("order-1"))
	hub.Join(bystander, OrderRoom("order-2"))

	hub.Publish(OrderRoom("order-1"), EventOrderStatusUpdate, map[string]string{"orderId": "order-1", "status": "picked_up"})

	frame := receiveFrame(t, tracker)
	if frame.Event != EventOrderStatusUpdate {
		t.Errorf("expected %s, got %s", EventOrderStatusUpdate, frame.Event)
	}

	select {
	case <-bystander.send:
		t.Error("bystander received a frame for a room it never joined")
	default:
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	tracker := newTestClient(hub, "user-1", RoleUser)

	hub.Join(tracker, OrderRoom("order-1"))
	hub.Leave(tracker, OrderRoom("order-1"))
	hub.Publish(OrderRoom("order-1"), EventOrderStatusUpdate, map[string]string{"orderId": "order-1"})

	select {
	case <-tracker.send:
		t.Error("received a frame after leaving the room")
	default:
	}

	if hub.RoomSize(OrderRoom("order-1")) != 0 {
		t.Error("expected empty room to be dropped")
	}
}

func TestHub_UnregisterCleansMembership(t *testing.T) {
	hub := NewHub(zap.NewNop())
	courier := newTestClient(hub, "courier-1", RoleCourier)

	hub.Join(courier, CourierRoom("courier-1"))
	hub.Join(courier, OrderRoom("order-1"))
	hub.unregister(courier)

	if hub.RoomSize(CourierRoom("courier-1")) != 0 {
		t.Error("courier room not cleaned up")
	}
	if hub.RoomSize(OrderRoom("order-1")) != 0 {
		t.Error("order room not cleaned up")
	}

	// Joining after unregister is a no-op.
	hub.Join(courier, OrderRoom("order-1"))
	if hub.RoomSize(OrderRoom("order-1")) != 0 {
		t.Error("unregistered client joined a room")
	}
}

func TestHub_OrderRoomsOfCourier(t *testing.T) {
	hub := NewHub(zap.NewNop())
	courier := newTestClient(hub, "courier-1", RoleCourier)

	hub.Join(courier, CourierRoom("courier-1"))
	hub.Join(courier, OrderRoom("order-1"))

	rooms := hub.OrderRoomsOfCourier("courier-1")
	if len(rooms) != 1 || rooms[0] != OrderRoom("order-1") {
		t.Errorf("expected [order:order-1], got %v", rooms)
	}

	if rooms := hub.OrderRoomsOfCourier("courier-2"); len(rooms) != 0 {
		t.Errorf("expected no rooms for unknown courier, got %v", rooms)
	}
}

func TestHub_SlowClientDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(zap.NewNop())
	slow := newTestClient(hub, "user-slow", RoleUser)
	hub.Join(slow, OrderRoom("order-1"))

	// Fill the send buffer past capacity; publishes must not block.
	for i := 0; i < sendBuffer+10; i++ {
		hub.Publish(OrderRoom("order-1"), EventOrderStatusUpdate, map[string]int{"seq": i})
	}

	if got := len(slow.send); got != sendBuffer {
		t.Errorf("expected %d buffered frames, got %d", sendBuffer, got)
	}
}
