package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// compensationLogInMemory хранит журнал применённых компенсаций по заказам.
type compensationLogInMemory struct {
	mu      sync.RWMutex
	entries map[string][]domain.CompensationEntry
}

// NewCompensationLogRepository возвращает in-memory журнал компенсаций.
func NewCompensationLogRepository() domain.CompensationLogRepository {
	return &compensationLogInMemory{
		entries: make(map[string][]domain.CompensationEntry),
	}
}

// Record добавляет запись о применённом побочном эффекте.
func (r *compensationLogInMemory) Record(entry domain.CompensationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.OrderID] = append(r.entries[entry.OrderID], entry)
	return nil
}

// List возвращает журнал заказа в порядке добавления.
func (r *compensationLogInMemory) List(orderID string) ([]domain.CompensationEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.CompensationEntry(nil), r.entries[orderID]...), nil
}

// HasApplied сообщает, применялся ли шаг для заказа.
func (r *compensationLogInMemory) HasApplied(orderID string, step domain.CompensationStep) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries[orderID] {
		if entry.Step == step && entry.Applied {
			return true, nil
		}
	}
	return false, nil
}

var _ domain.CompensationLogRepository = (*compensationLogInMemory)(nil)
