package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

type historyRepository struct {
	db *sql.DB
}

// NewStatusHistoryRepository создаёт PostgreSQL-реализацию StatusHistoryRepository.
func NewStatusHistoryRepository(store *Store) domain.StatusHistoryRepository {
	return &historyRepository{db: store.DB()}
}

func (r *historyRepository) Append(entry domain.StatusHistoryEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, status, message, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`,
		entry.ID, entry.OrderID, string(entry.Status), entry.Message, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status history entry: %w", err)
	}
	return nil
}

func (r *historyRepository) List(orderID string) ([]domain.StatusHistoryEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, status, message, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.StatusHistoryEntry, 0)
	for rows.Next() {
		var (
			entry  domain.StatusHistoryEntry
			status string
		)
		if err := rows.Scan(&entry.ID, &entry.OrderID, &status, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history entry: %w", err)
		}
		entry.Status = domain.OrderStatus(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return entries, nil
}

var _ domain.StatusHistoryRepository = (*historyRepository)(nil)
