package postgres

import (
	"context"
	"database/sql"
	"time"

	"dispatch/internal/domain"
)

// OutboxRepository is a PostgreSQL implementation of repository.OutboxRepository.
type OutboxRepository struct {
	q Querier
}

// NewOutboxRepository creates a new PostgreSQL outbox repository.
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{q: db}
}

// NewOutboxRepositoryWithTx creates an outbox repository using a transaction.
func NewOutboxRepositoryWithTx(tx *sql.Tx) *OutboxRepository {
	return &OutboxRepository{q: tx}
}

// Enqueue inserts a pending event.
func (r *OutboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	query := `INSERT INTO event_outbox (id, topic, key, payload, attempts, created_at)
	          VALUES ($1, $2, $3, $4, 0, $5)`
	_, err := r.q.ExecContext(ctx, query,
		event.ID, event.Topic, event.Key, event.Payload, event.CreatedAt)
	return err
}

// FetchUnsent returns up to limit unsent events that have not exhausted
// their attempts, oldest first. FOR UPDATE SKIP LOCKED only shields
// concurrent drainers when the fetch runs inside a transaction (via
// NewOutboxRepositoryWithTx); on a bare connection the row locks end
// with the statement. Duplicate sends are acceptable either way, the
// outbox contract is at-least-once.
func (r *OutboxRepository) FetchUnsent(ctx context.Context, maxAttempts, limit int) ([]*domain.OutboxEvent, error) {
	query := `SELECT id, topic, key, payload, attempts, COALESCE(last_error, ''), created_at
	          FROM event_outbox
	          WHERE sent_at IS NULL AND attempts < $1
	          ORDER BY created_at
	          LIMIT $2
	          FOR UPDATE SKIP LOCKED`
	rows, err := r.q.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.Topic, &e.Key, &e.Payload, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}

// MarkSent stamps a successful publication.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `UPDATE event_outbox SET sent_at = $2 WHERE id = $1`
	res, err := r.q.ExecContext(ctx, query, id, sentAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkFailed records a failed publication attempt for later retry.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	query := `UPDATE event_outbox SET attempts = $2, last_error = $3 WHERE id = $1`
	res, err := r.q.ExecContext(ctx, query, id, attempts, lastError)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
