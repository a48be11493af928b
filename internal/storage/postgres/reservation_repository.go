package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) domain.ReservationRepository {
	return &reservationRepository{db: store.DB()}
}

func (r *reservationRepository) Create(res domain.Reservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (id, sku, qty, status, reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		res.ID, res.SKU, res.Qty, string(res.Status), res.Reason,
		res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		// Повторная доставка запроса резервирования с тем же ID.
		if isUniqueViolation(err) {
			return domain.ErrReservationClosed
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *reservationRepository) Get(sku, reservationID string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res    domain.Reservation
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sku, qty, status, reason, created_at, updated_at
		FROM reservations
		WHERE sku = $1 AND id = $2
	`, sku, reservationID).Scan(
		&res.ID, &res.SKU, &res.Qty, &status, &res.Reason,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	res.Status = domain.ReservationStatus(status)
	return res, nil
}

// Close переводит активный резерв в терминальный статус.
// Условный UPDATE гарантирует, что закрыть резерв может только один вызов:
// конкурент получает 0 затронутых строк и ErrReservationClosed.
func (r *reservationRepository) Close(sku, reservationID string, status domain.ReservationStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = $3,
		    updated_at = NOW()
		WHERE sku = $1
		  AND id = $2
		  AND status = 'active'
	`, sku, reservationID, string(status))
	if err != nil {
		return fmt.Errorf("close reservation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(sku, reservationID); getErr != nil {
			return getErr
		}
		return domain.ErrReservationClosed
	}

	return nil
}

// Reopen возвращает закрытый резерв в active.
func (r *reservationRepository) Reopen(sku, reservationID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'active',
		    updated_at = NOW()
		WHERE sku = $1
		  AND id = $2
		  AND status <> 'active'
	`, sku, reservationID)
	if err != nil {
		return fmt.Errorf("reopen reservation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Либо резерв не существует, либо он и так активен.
		if _, getErr := r.Get(sku, reservationID); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (r *reservationRepository) ListStale(cutoff time.Time, limit int) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sku, qty, status, reason, created_at, updated_at
		FROM reservations
		WHERE status = 'active'
		  AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale reservations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Reservation, 0)
	for rows.Next() {
		var (
			res    domain.Reservation
			status string
		)
		if err := rows.Scan(
			&res.ID, &res.SKU, &res.Qty, &status, &res.Reason,
			&res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		res.Status = domain.ReservationStatus(status)
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	return result, nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
