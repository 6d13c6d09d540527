package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// OutboxRepository defines storage for pending outbound events.
// Enqueue happens in the same unit of work as the state change that
// produced the event; the publisher drains unsent rows with retries.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error
	FetchUnsent(ctx context.Context, maxAttempts, limit int) ([]*domain.OutboxEvent, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
}
