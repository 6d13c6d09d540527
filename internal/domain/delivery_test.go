package domain

import "testing"

func TestDeliveryStatus_SingleStepTransitions(t *testing.T) {
	t.Parallel()

	ordered := []DeliveryStatus{
		DeliveryStatusAccepted,
		DeliveryStatusPickedUp,
		DeliveryStatusOnTheWay,
		DeliveryStatusArrived,
		DeliveryStatusDelivered,
	}

	for i, from := range ordered {
		for j, to := range ordered {
			want := j == i+1
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestDeliveryStatus_DeliveredIsTerminal(t *testing.T) {
	t.Parallel()

	if !DeliveryStatusDelivered.Terminal() {
		t.Error("expected delivered to be terminal")
	}

	for _, next := range []DeliveryStatus{
		DeliveryStatusAccepted, DeliveryStatusPickedUp,
		DeliveryStatusOnTheWay, DeliveryStatusArrived, DeliveryStatusDelivered,
	} {
		if DeliveryStatusDelivered.CanTransitionTo(next) {
			t.Errorf("expected no transition out of delivered, got delivered -> %s", next)
		}
	}
}

func TestDeliveryStatus_Valid(t *testing.T) {
	t.Parallel()

	if DeliveryStatus("teleported").Valid() {
		t.Error("expected unknown status to be invalid")
	}
	if !DeliveryStatusOnTheWay.Valid() {
		t.Error("expected on_the_way to be valid")
	}
}
