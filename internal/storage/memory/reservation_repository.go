package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// reservationRepositoryInMemory хранит записи резервов по ключу (sku, reservationID).
type reservationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Reservation
}

// NewReservationRepository возвращает in-memory репозиторий резервов.
func NewReservationRepository() domain.ReservationRepository {
	return &reservationRepositoryInMemory{
		items: make(map[string]domain.Reservation),
	}
}

func reservationKey(sku, reservationID string) string {
	return sku + "/" + reservationID
}

// Create сохраняет новый резерв. Повторный Create с тем же ID — конфликт:
// это повторная доставка запроса, а не новый резерв.
func (r *reservationRepositoryInMemory) Create(res domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reservationKey(res.SKU, res.ID)
	if _, exists := r.items[key]; exists {
		return domain.ErrReservationClosed
	}
	r.items[key] = res
	return nil
}

// Get возвращает резерв или ErrReservationNotFound.
func (r *reservationRepositoryInMemory) Get(sku, reservationID string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.items[reservationKey(sku, reservationID)]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

// Close переводит активный резерв в терминальный статус.
func (r *reservationRepositoryInMemory) Close(sku, reservationID string, status domain.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reservationKey(sku, reservationID)
	res, ok := r.items[key]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if !res.IsOpen() {
		return domain.ErrReservationClosed
	}
	res.Status = status
	res.UpdatedAt = time.Now().UTC()
	r.items[key] = res
	return nil
}

// Reopen возвращает закрытый резерв в active.
func (r *reservationRepositoryInMemory) Reopen(sku, reservationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reservationKey(sku, reservationID)
	res, ok := r.items[key]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if res.IsOpen() {
		return nil
	}
	res.Status = domain.ReservationStatusActive
	res.UpdatedAt = time.Now().UTC()
	r.items[key] = res
	return nil
}

// ListStale возвращает активные резервы старше cutoff.
func (r *reservationRepositoryInMemory) ListStale(cutoff time.Time, limit int) ([]domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0)
	for _, res := range r.items {
		if res.IsOpen() && res.CreatedAt.Before(cutoff) {
			result = append(result, res)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
