package postgres

import (
	"context"
	"database/sql"
	"time"

	"dispatch/internal/domain"
)

// EarningRepository is a PostgreSQL implementation of repository.EarningRepository.
type EarningRepository struct {
	q Querier
}

// NewEarningRepository creates a new PostgreSQL earning repository.
func NewEarningRepository(db *sql.DB) *EarningRepository {
	return &EarningRepository{q: db}
}

// NewEarningRepositoryWithTx creates an earning repository using a transaction.
func NewEarningRepositoryWithTx(tx *sql.Tx) *EarningRepository {
	return &EarningRepository{q: tx}
}

// Create adds a new earning line and bumps the courier's running totals.
func (r *EarningRepository) Create(ctx context.Context, earning *domain.Earning) error {
	query := `INSERT INTO courier_earnings (id, courier_id, order_id, amount, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.ExecContext(ctx, query,
		earning.ID, earning.CourierID, earning.OrderID, earning.Amount, earning.Status, earning.CreatedAt)
	if err != nil {
		return err
	}

	totals := `UPDATE couriers
	           SET total_earnings = total_earnings + $2, total_deliveries = total_deliveries + 1
	           WHERE id = $1`
	_, err = r.q.ExecContext(ctx, totals, earning.CourierID, earning.Amount)
	return err
}

// ListByCourier retrieves a courier's earnings since the given time,
// newest first. A zero time returns everything.
func (r *EarningRepository) ListByCourier(ctx context.Context, courierID string, since time.Time) ([]*domain.Earning, error) {
	query := `SELECT id, courier_id, order_id, amount, status, created_at
	          FROM courier_earnings
	          WHERE courier_id = $1 AND created_at >= $2
	          ORDER BY created_at DESC`
	rows, err := r.q.QueryContext(ctx, query, courierID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []*domain.Earning
	for rows.Next() {
		var e domain.Earning
		if err := rows.Scan(&e.ID, &e.CourierID, &e.OrderID, &e.Amount, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		earnings = append(earnings, &e)
	}

	return earnings, rows.Err()
}
