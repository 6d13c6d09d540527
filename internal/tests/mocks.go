package tests

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/redis"
)

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

type mockPosition struct {
	lat, lon       float64
	availableUntil time.Time
}

// MockLocationStore is an in-memory implementation of
// LocationStoreInterface with real expiry semantics. Tests control
// time through the Now field.
type MockLocationStore struct {
	mu        sync.RWMutex
	positions map[string]*mockPosition

	// Now supplies the clock; defaults to time.Now.
	Now func() time.Time

	// Error injection
	FindNearbyError     error
	UpsertPositionError error
}

const mockAvailabilityTTL = 5 * time.Minute

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		positions: make(map[string]*mockPosition),
		Now:       time.Now,
	}
}

func (m *MockLocationStore) UpsertPosition(ctx context.Context, courierID string, lat, lon float64) error {
	if m.UpsertPositionError != nil {
		return m.UpsertPositionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[courierID] = &mockPosition{
		lat: lat, lon: lon,
		availableUntil: m.Now().Add(mockAvailabilityTTL),
	}
	return nil
}

func (m *MockLocationStore) MarkAvailable(ctx context.Context, courierID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[courierID]
	if !ok {
		return false, nil
	}
	pos.availableUntil = m.Now().Add(mockAvailabilityTTL)
	return true, nil
}

func (m *MockLocationStore) MarkUnavailable(ctx context.Context, courierID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, courierID)
	return nil
}

func (m *MockLocationStore) FindNearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]redis.NearbyCourier, error) {
	if m.FindNearbyError != nil {
		return nil, m.FindNearbyError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.Now()
	var result []redis.NearbyCourier
	for id, pos := range m.positions {
		if !now.Before(pos.availableUntil) {
			continue
		}
		dist := geo.DistanceKm(lat, lon, pos.lat, pos.lon)
		if dist > radiusKm {
			continue
		}
		result = append(result, redis.NearbyCourier{
			CourierID:  id,
			Latitude:   pos.lat,
			Longitude:  pos.lon,
			DistanceKm: dist,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DistanceKm < result[j].DistanceKm })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockLocationStore) GetPosition(ctx context.Context, courierID string) (float64, float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[courierID]
	if !ok {
		return 0, 0, false, nil
	}
	return pos.lat, pos.lon, true, nil
}

func (m *MockLocationStore) IsAvailable(ctx context.Context, courierID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[courierID]
	return ok && m.Now().Before(pos.availableUntil), nil
}

// ──────────────────────────────────────────────
// MOCK OFFER STORE
// ──────────────────────────────────────────────

type offerRef struct {
	courierID string
	orderID   string
}

// MockOfferStore mirrors the offer store's arbitration semantics in
// memory: a single winner per order, sibling offers retired on accept,
// expiry checked against the mock clock.
type MockOfferStore struct {
	mu      sync.Mutex
	offers  map[offerRef]*domain.Offer
	winners map[string]string

	Now func() time.Time

	// Counters for verification
	AcceptCallCount int32

	// Error injection
	CreateOffersError error
	AcceptError       error
}

// NewMockOfferStore creates a new mock offer store.
func NewMockOfferStore() *MockOfferStore {
	return &MockOfferStore{
		offers:  make(map[offerRef]*domain.Offer),
		winners: make(map[string]string),
		Now:     time.Now,
	}
}

func (m *MockOfferStore) CreateOffers(ctx context.Context, offers []domain.Offer) error {
	if m.CreateOffersError != nil {
		return m.CreateOffersError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range offers {
		o := offers[i]
		m.offers[offerRef{o.CourierID, o.OrderID}] = &o
	}
	return nil
}

func (m *MockOfferStore) Accept(ctx context.Context, courierID, orderID string) (*domain.Offer, error) {
	atomic.AddInt32(&m.AcceptCallCount, 1)
	if m.AcceptError != nil {
		return nil, m.AcceptError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.winners[orderID]; taken {
		return nil, redis.ErrOrderTaken
	}
	offer, ok := m.offers[offerRef{courierID, orderID}]
	if !ok || offer.Expired(m.Now()) {
		return nil, redis.ErrOfferGone
	}

	m.winners[orderID] = courierID
	for ref := range m.offers {
		if ref.orderID == orderID {
			delete(m.offers, ref)
		}
	}
	won := *offer
	return &won, nil
}

func (m *MockOfferStore) ReleaseWinner(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.winners, orderID)
	return nil
}

func (m *MockOfferStore) Reject(ctx context.Context, courierID, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := offerRef{courierID, orderID}
	offer, ok := m.offers[ref]
	if !ok || offer.Expired(m.Now()) {
		return false, nil
	}
	delete(m.offers, ref)
	return true, nil
}

func (m *MockOfferStore) ListPending(ctx context.Context, courierID string) ([]domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var result []domain.Offer
	for ref, offer := range m.offers {
		if ref.courierID != courierID {
			continue
		}
		if offer.Expired(now) {
			delete(m.offers, ref)
			continue
		}
		result = append(result, *offer)
	}
	return result, nil
}

func (m *MockOfferStore) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	removed := 0
	for ref, offer := range m.offers {
		if offer.Expired(now) {
			delete(m.offers, ref)
			removed++
		}
	}
	return removed, nil
}

// Winner returns the courier that won an order, if any.
func (m *MockOfferStore) Winner(orderID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.winners[orderID]
	return w, ok
}

// PendingCount reports live offers across all couriers.
func (m *MockOfferStore) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.offers)
}

// ──────────────────────────────────────────────
// MOCK DELIVERY STORE
// ──────────────────────────────────────────────

// MockDeliveryStore is an in-memory implementation of
// DeliveryStoreInterface with create-if-absent and compare-and-set
// semantics matching the real store.
type MockDeliveryStore struct {
	mu         sync.Mutex
	deliveries map[string]*domain.ActiveDelivery

	// Error injection
	CreateError error
	GetError    error
	UpdateError error
}

// NewMockDeliveryStore creates a new mock delivery store.
func NewMockDeliveryStore() *MockDeliveryStore {
	return &MockDeliveryStore{deliveries: make(map[string]*domain.ActiveDelivery)}
}

func (m *MockDeliveryStore) Create(ctx context.Context, d *domain.ActiveDelivery) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.deliveries[d.CourierID]; exists {
		return redis.ErrDeliveryExists
	}
	copy := *d
	m.deliveries[d.CourierID] = &copy
	return nil
}

func (m *MockDeliveryStore) Get(ctx context.Context, courierID string) (*domain.ActiveDelivery, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[courierID]
	if !ok {
		return nil, nil
	}
	copy := *d
	return &copy, nil
}

func (m *MockDeliveryStore) UpdateStatus(ctx context.Context, updated *domain.ActiveDelivery, expected domain.DeliveryStatus) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.deliveries[updated.CourierID]
	if !ok {
		return redis.ErrDeliveryMissing
	}
	if current.Status != expected {
		return &redis.StatusConflictError{Current: current.Status}
	}
	copy := *updated
	m.deliveries[updated.CourierID] = &copy
	return nil
}

func (m *MockDeliveryStore) Delete(ctx context.Context, courierID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deliveries, courierID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK EARNING REPOSITORY
// ──────────────────────────────────────────────

// MockEarningRepository is an in-memory implementation of EarningRepository.
type MockEarningRepository struct {
	mu       sync.Mutex
	earnings []*domain.Earning

	// Counters for verification
	CreateCallCount int32

	// Error injection
	CreateError error
	ListError   error
}

// NewMockEarningRepository creates a new mock earning repository.
func NewMockEarningRepository() *MockEarningRepository {
	return &MockEarningRepository{}
}

func (m *MockEarningRepository) Create(ctx context.Context, earning *domain.Earning) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *earning
	m.earnings = append(m.earnings, &copy)
	return nil
}

func (m *MockEarningRepository) ListByCourier(ctx context.Context, courierID string, since time.Time) ([]*domain.Earning, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Earning
	for _, e := range m.earnings {
		if e.CourierID != courierID {
			continue
		}
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		copy := *e
		result = append(result, &copy)
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK EMITTER
// ──────────────────────────────────────────────

// EmittedEvent is one recorded emission.
type EmittedEvent struct {
	Topic   string
	Key     string
	Payload []byte
}

// MockEmitter records emitted events for verification.
type MockEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent

	// Error injection
	EmitError error
}

// NewMockEmitter creates a new mock emitter.
func NewMockEmitter() *MockEmitter {
	return &MockEmitter{}
}

func (m *MockEmitter) Emit(ctx context.Context, topic, key string, payload any) error {
	if m.EmitError != nil {
		return m.EmitError
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, EmittedEvent{Topic: topic, Key: key, Payload: data})
	return nil
}

// Events returns all recorded emissions.
func (m *MockEmitter) Events() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.events...)
}

// EventsForTopic returns recorded emissions on one topic.
func (m *MockEmitter) EventsForTopic(topic string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []EmittedEvent
	for _, e := range m.events {
		if e.Topic == topic {
			result = append(result, e)
		}
	}
	return result
}

// ──────────────────────────────────────────────
// MOCK PRODUCER
// ──────────────────────────────────────────────

// MockProducer records messages sent straight to the broker.
type MockProducer struct {
	mu       sync.Mutex
	messages []EmittedEvent

	// Error injection
	SendError error
}

// NewMockProducer creates a new mock producer.
func NewMockProducer() *MockProducer {
	return &MockProducer{}
}

func (m *MockProducer) SendMessage(ctx context.Context, topic string, key, value []byte) error {
	if m.SendError != nil {
		return m.SendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, EmittedEvent{Topic: topic, Key: string(key), Payload: value})
	return nil
}

func (m *MockProducer) Close() error { return nil }

// Messages returns all recorded sends.
func (m *MockProducer) Messages() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.messages...)
}
