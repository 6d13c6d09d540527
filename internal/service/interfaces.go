package service

import "context"

// Emitter records an outbound event for reliable delivery through the
// outbox. The enqueue is the commit point; the broker send happens
// asynchronously with retries.
type Emitter interface {
	Emit(ctx context.Context, topic, key string, payload any) error
}

// Publisher sends a message straight to the broker, bypassing the
// outbox. Used for high-frequency telemetry where losing a sample is
// cheaper than queuing it.
type Publisher interface {
	SendMessage(ctx context.Context, topic string, key, value []byte) error
}
