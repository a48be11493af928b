package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// stockRepositoryInMemory — in-memory реализация StockRepository.
//
// Конкурентная модель повторяет row-lock реляционного хранилища: каждая
// мутация захватывает mutex конкретного SKU, и защитное условие проверяется
// внутри критической секции вместе с записью. Мутации разных SKU независимы.
type stockRepositoryInMemory struct {
	mu    sync.RWMutex // защищает карты items и locks
	items map[string]domain.StockItem
	locks map[string]*sync.Mutex
}

// NewStockRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewStockRepository() domain.StockRepository {
	return &stockRepositoryInMemory{
		items: make(map[string]domain.StockItem),
		locks: make(map[string]*sync.Mutex),
	}
}

// rowLock возвращает mutex для SKU, создавая его при первом обращении.
func (r *stockRepositoryInMemory) rowLock(sku string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[sku]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sku] = lock
	}
	return lock
}

// Create сохраняет новую позицию, если SKU ещё не занят.
func (r *stockRepositoryInMemory) Create(item domain.StockItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.SKU]; exists {
		return domain.ErrSKUExists
	}
	r.items[item.SKU] = item
	return nil
}

// Get возвращает позицию или ErrStockItemNotFound.
func (r *stockRepositoryInMemory) Get(sku string) (domain.StockItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[sku]
	if !ok {
		return domain.StockItem{}, domain.ErrStockItemNotFound
	}
	return item, nil
}

// mutate выполняет fn под row-lock SKU и фиксирует результат.
// fn проверяет guard и возвращает обновлённую позицию одним действием.
func (r *stockRepositoryInMemory) mutate(sku string, fn func(item domain.StockItem) (domain.StockItem, error)) (domain.StockItem, error) {
	lock := r.rowLock(sku)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	item, ok := r.items[sku]
	r.mu.RUnlock()
	if !ok {
		return domain.StockItem{}, domain.ErrStockItemNotFound
	}

	updated, err := fn(item)
	if err != nil {
		return domain.StockItem{}, err
	}
	updated.Version = item.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.items[sku] = updated
	r.mu.Unlock()

	return updated, nil
}

// AdjustQuantity атомарно меняет общее количество с guard на неотрицательность.
func (r *stockRepositoryInMemory) AdjustQuantity(sku string, delta int64) (domain.StockItem, error) {
	return r.mutate(sku, func(item domain.StockItem) (domain.StockItem, error) {
		if item.Quantity+delta < 0 || item.Quantity+delta < item.Reserved {
			return domain.StockItem{}, domain.ErrInsufficientStock
		}
		item.Quantity += delta
		return item, nil
	})
}

// Reserve атомарно удерживает qty, если доступного остатка достаточно.
func (r *stockRepositoryInMemory) Reserve(sku string, qty int64) (domain.StockItem, error) {
	return r.mutate(sku, func(item domain.StockItem) (domain.StockItem, error) {
		if item.Available() < qty {
			return domain.StockItem{}, domain.ErrInsufficientStock
		}
		item.Reserved += qty
		return item, nil
	})
}

// Release атомарно снимает qty из резерва.
func (r *stockRepositoryInMemory) Release(sku string, qty int64) (domain.StockItem, error) {
	return r.mutate(sku, func(item domain.StockItem) (domain.StockItem, error) {
		if item.Reserved < qty {
			return domain.StockItem{}, domain.ErrInsufficientReserved
		}
		item.Reserved -= qty
		return item, nil
	})
}

// ConsumeReserved атомарно превращает резерв в постоянное списание.
func (r *stockRepositoryInMemory) ConsumeReserved(sku string, qty int64) (domain.StockItem, error) {
	return r.mutate(sku, func(item domain.StockItem) (domain.StockItem, error) {
		if item.Quantity < qty || item.Reserved < qty {
			return domain.StockItem{}, domain.ErrInsufficientReserved
		}
		item.Quantity -= qty
		item.Reserved -= qty
		return item, nil
	})
}

// MarkRestocked проставляет отметки пополнения.
func (r *stockRepositoryInMemory) MarkRestocked(sku string, restockedAt, nextRestockAt time.Time) (domain.StockItem, error) {
	return r.mutate(sku, func(item domain.StockItem) (domain.StockItem, error) {
		item.LastRestockedAt = &restockedAt
		item.NextRestockAt = &nextRestockAt
		return item, nil
	})
}

// SetActive переключает флаг активности позиции.
func (r *stockRepositoryInMemory) SetActive(sku string, active bool) (domain.StockItem, error) {
	return r.mutate(sku, func(item domain.StockItem) (domain.StockItem, error) {
		item.IsActive = active
		return item, nil
	})
}

// ListLowStock возвращает активные позиции с available <= lowStockThreshold.
func (r *stockRepositoryInMemory) ListLowStock() ([]domain.StockItem, error) {
	return r.list(func(item domain.StockItem) bool {
		return item.IsActive && item.Available() <= item.LowStockThreshold
	})
}

// ListNeedingRestock возвращает активные позиции с available <= restockThreshold.
func (r *stockRepositoryInMemory) ListNeedingRestock() ([]domain.StockItem, error) {
	return r.list(func(item domain.StockItem) bool {
		return item.IsActive && item.Available() <= item.RestockThreshold
	})
}

func (r *stockRepositoryInMemory) list(keep func(domain.StockItem) bool) ([]domain.StockItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.StockItem, 0)
	for _, item := range r.items {
		if keep(item) {
			result = append(result, item)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SKU < result[j].SKU
	})

	return result, nil
}

var _ domain.StockRepository = (*stockRepositoryInMemory)(nil)
