package service

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable is returned when a backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrOfferNotFound is returned when no live offer exists for the courier and order.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrAlreadyAssigned is returned when another courier has already won the order.
	ErrAlreadyAssigned = errors.New("order already assigned")

	// ErrCourierBusy is returned when the courier already has an active delivery.
	ErrCourierBusy = errors.New("courier already has an active delivery")

	// ErrInvalidTransition is returned when a delivery status change is not the allowed next step.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoActiveDelivery is returned when the courier has no delivery in progress.
	ErrNoActiveDelivery = errors.New("no active delivery")

	// ErrInvalidCourierID is returned when courier ID is empty.
	ErrInvalidCourierID = errors.New("invalid courier id")

	// ErrInvalidOrderID is returned when order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidLocation is returned when coordinates are out of range or missing.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidStatus is returned when a requested delivery status is unknown
	// or not reachable by a transition.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidPeriod is returned when an earnings period filter is unknown.
	ErrInvalidPeriod = errors.New("invalid period")
)

// storeError wraps a backing-store failure so callers can match on
// ErrStoreUnavailable while the log line keeps the underlying cause.
func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// validLatLon reports whether the coordinates are within WGS84 bounds.
func validLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
