package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// historyRepositoryInMemory хранит append-only журнал статусов заказов.
type historyRepositoryInMemory struct {
	mu      sync.RWMutex
	entries map[string][]domain.StatusHistoryEntry
}

// NewStatusHistoryRepository возвращает in-memory журнал статусов.
func NewStatusHistoryRepository() domain.StatusHistoryRepository {
	return &historyRepositoryInMemory{
		entries: make(map[string][]domain.StatusHistoryEntry),
	}
}

// Append добавляет запись в журнал. Записи не изменяются и не удаляются.
func (r *historyRepositoryInMemory) Append(entry domain.StatusHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.OrderID] = append(r.entries[entry.OrderID], entry)
	return nil
}

// List возвращает журнал заказа в порядке добавления.
func (r *historyRepositoryInMemory) List(orderID string) ([]domain.StatusHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.StatusHistoryEntry(nil), r.entries[orderID]...), nil
}

var _ domain.StatusHistoryRepository = (*historyRepositoryInMemory)(nil)
