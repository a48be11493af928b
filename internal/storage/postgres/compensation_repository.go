package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

type compensationRepository struct {
	db *sql.DB
}

// NewCompensationLogRepository создаёт PostgreSQL-реализацию CompensationLogRepository.
func NewCompensationLogRepository(store *Store) domain.CompensationLogRepository {
	return &compensationRepository{db: store.DB()}
}

func (r *compensationRepository) Record(entry domain.CompensationEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_compensations (id, order_id, step, applied, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		entry.ID, entry.OrderID, string(entry.Step), entry.Applied, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert compensation entry: %w", err)
	}
	return nil
}

func (r *compensationRepository) List(orderID string) ([]domain.CompensationEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, step, applied, detail, created_at
		FROM order_compensations
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list compensation entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.CompensationEntry, 0)
	for rows.Next() {
		var (
			entry domain.CompensationEntry
			step  string
		)
		if err := rows.Scan(&entry.ID, &entry.OrderID, &step, &entry.Applied, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan compensation entry: %w", err)
		}
		entry.Step = domain.CompensationStep(step)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compensation entries: %w", err)
	}

	return entries, nil
}

func (r *compensationRepository) HasApplied(orderID string, step domain.CompensationStep) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_compensations
			WHERE order_id = $1 AND step = $2 AND applied
		)
	`, orderID, string(step)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check compensation step: %w", err)
	}
	return exists, nil
}

var _ domain.CompensationLogRepository = (*compensationRepository)(nil)
