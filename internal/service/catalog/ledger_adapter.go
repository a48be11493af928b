package catalog

import (
	"context"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/ledger"
)

// LedgerAdapter реализует контракт каталога поверх локального склада.
// Счётчик каталога и журнал склада при этом один и тот же: расхождение
// между "каталог разрешил" и "склад отказал" исключено по построению.
type LedgerAdapter struct {
	ledger *ledger.Service
}

// NewLedgerAdapter создаёт адаптер каталога поверх склада.
func NewLedgerAdapter(svc *ledger.Service) *LedgerAdapter {
	return &LedgerAdapter{ledger: svc}
}

// CheckAvailability сообщает, доступны ли все позиции в требуемом количестве.
func (a *LedgerAdapter) CheckAvailability(ctx context.Context, items []domain.AvailabilityItem) (bool, error) {
	for _, item := range items {
		ok, err := a.ledger.IsInStock(item.SKU, item.Qty)
		if err != nil {
			if domain.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// UpdateInventory применяет знаковые дельты к остаткам склада.
// Отрицательная дельта не пройдёт, если доступного остатка недостаточно:
// защитное условие проверяется атомарно на уровне хранилища.
func (a *LedgerAdapter) UpdateInventory(ctx context.Context, items []domain.AvailabilityItem) error {
	for i, item := range items {
		reason := "order decrement"
		if item.Qty > 0 {
			reason = "order compensation"
		}
		if _, err := a.ledger.AdjustStock(item.SKU, item.Qty, reason); err != nil {
			// Частично применённые дельты возвращаем обратно: вызов
			// либо применяется целиком, либо не применяется вовсе.
			a.rollback(items[:i])
			return err
		}
	}
	return nil
}

func (a *LedgerAdapter) rollback(applied []domain.AvailabilityItem) {
	for _, item := range applied {
		// Возврат с противоположным знаком. Ошибка отката не маскирует
		// исходную: положительная дельта не нарушает защитных условий.
		_, _ = a.ledger.AdjustStock(item.SKU, -item.Qty, "order rollback")
	}
}

var _ domain.CatalogClient = (*LedgerAdapter)(nil)
