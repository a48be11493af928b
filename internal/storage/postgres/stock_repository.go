package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

const stockColumns = `
	sku, product_id, quantity, reserved,
	low_stock_threshold, restock_threshold, is_active,
	last_restocked_at, next_restock_at,
	version, created_at, updated_at
`

type stockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию StockRepository.
//
// Все мутации выполняются условным UPDATE: guard входит в WHERE, так что
// проверка и запись — одно атомарное действие на строке SKU. Проигравший
// конкурент получает 0 затронутых строк, и причина различается повторным
// чтением строки.
func NewStockRepository(store *Store) domain.StockRepository {
	return &stockRepository{db: store.DB()}
}

func (r *stockRepository) Create(item domain.StockItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_items (`+stockColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		item.SKU, item.ProductID, item.Quantity, item.Reserved,
		item.LowStockThreshold, item.RestockThreshold, item.IsActive,
		item.LastRestockedAt, item.NextRestockAt,
		item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSKUExists
		}
		return fmt.Errorf("insert stock item: %w", err)
	}
	return nil
}

func (r *stockRepository) Get(sku string) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return r.get(ctx, sku)
}

// AdjustQuantity атомарно меняет quantity на delta.
func (r *stockRepository) AdjustQuantity(sku string, delta int64) (domain.StockItem, error) {
	return r.guardedUpdate(sku, domain.ErrInsufficientStock, `
		UPDATE stock_items
		SET quantity = quantity + $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE sku = $1
		  AND quantity + $2 >= 0
		  AND quantity + $2 >= reserved
	`, delta)
}

// Reserve атомарно удерживает qty, если доступного остатка достаточно.
func (r *stockRepository) Reserve(sku string, qty int64) (domain.StockItem, error) {
	return r.guardedUpdate(sku, domain.ErrInsufficientStock, `
		UPDATE stock_items
		SET reserved = reserved + $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE sku = $1
		  AND quantity - reserved >= $2
	`, qty)
}

// Release атомарно снимает qty из резерва.
func (r *stockRepository) Release(sku string, qty int64) (domain.StockItem, error) {
	return r.guardedUpdate(sku, domain.ErrInsufficientReserved, `
		UPDATE stock_items
		SET reserved = reserved - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE sku = $1
		  AND reserved >= $2
	`, qty)
}

// ConsumeReserved атомарно превращает резерв в постоянное списание.
func (r *stockRepository) ConsumeReserved(sku string, qty int64) (domain.StockItem, error) {
	return r.guardedUpdate(sku, domain.ErrInsufficientReserved, `
		UPDATE stock_items
		SET quantity = quantity - $2,
		    reserved = reserved - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE sku = $1
		  AND quantity >= $2
		  AND reserved >= $2
	`, qty)
}

func (r *stockRepository) MarkRestocked(sku string, restockedAt, nextRestockAt time.Time) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE stock_items
		SET last_restocked_at = $2,
		    next_restock_at = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE sku = $1
	`, sku, restockedAt, nextRestockAt)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("mark restocked: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return domain.StockItem{}, fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		return domain.StockItem{}, domain.ErrStockItemNotFound
	}

	return r.get(ctx, sku)
}

func (r *stockRepository) SetActive(sku string, active bool) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE stock_items
		SET is_active = $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE sku = $1
	`, sku, active)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("set active: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return domain.StockItem{}, fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		return domain.StockItem{}, domain.ErrStockItemNotFound
	}

	return r.get(ctx, sku)
}

func (r *stockRepository) ListLowStock() ([]domain.StockItem, error) {
	return r.list(`
		SELECT ` + stockColumns + `
		FROM stock_items
		WHERE is_active
		  AND quantity - reserved <= low_stock_threshold
		ORDER BY sku
	`)
}

func (r *stockRepository) ListNeedingRestock() ([]domain.StockItem, error) {
	return r.list(`
		SELECT ` + stockColumns + `
		FROM stock_items
		WHERE is_active
		  AND quantity - reserved <= restock_threshold
		ORDER BY sku
	`)
}

// guardedUpdate выполняет условный UPDATE и различает "строки нет"
// и "guard не выполнен" повторным чтением.
func (r *stockRepository) guardedUpdate(sku string, guardErr error, query string, arg int64) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, sku, arg)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("guarded stock update: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.get(ctx, sku); getErr != nil {
			return domain.StockItem{}, getErr
		}
		return domain.StockItem{}, guardErr
	}

	return r.get(ctx, sku)
}

func (r *stockRepository) get(ctx context.Context, sku string) (domain.StockItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+stockColumns+`
		FROM stock_items
		WHERE sku = $1
	`, sku)

	item, err := scanStockItem(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockItem{}, domain.ErrStockItemNotFound
		}
		return domain.StockItem{}, fmt.Errorf("select stock item: %w", err)
	}
	return item, nil
}

func (r *stockRepository) list(query string) ([]domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stock items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0)
	for rows.Next() {
		item, err := scanStockItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock items: %w", err)
	}

	return items, nil
}

func scanStockItem(scan func(...any) error) (domain.StockItem, error) {
	var (
		item            domain.StockItem
		lastRestockedAt sql.NullTime
		nextRestockAt   sql.NullTime
	)
	if err := scan(
		&item.SKU, &item.ProductID, &item.Quantity, &item.Reserved,
		&item.LowStockThreshold, &item.RestockThreshold, &item.IsActive,
		&lastRestockedAt, &nextRestockAt,
		&item.Version, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return domain.StockItem{}, err
	}
	if lastRestockedAt.Valid {
		t := lastRestockedAt.Time
		item.LastRestockedAt = &t
	}
	if nextRestockAt.Valid {
		t := nextRestockAt.Time
		item.NextRestockAt = &t
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.StockRepository = (*stockRepository)(nil)
