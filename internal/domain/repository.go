package domain

import "time"

// StockRepository описывает требования к хранилищу складских позиций.
//
// Мутирующие операции атомарны: защитное условие и запись выполняются одним
// действием (условный UPDATE в SQL, критическая секция по SKU в памяти).
// Раздельное чтение-потом-запись запрещено: оно допускает oversell
// при конкурентных вызовах.
type StockRepository interface {
	// Create сохраняет новую позицию. Возвращает ErrSKUExists, если SKU занят.
	Create(item StockItem) error
	// Get возвращает позицию по SKU или ErrStockItemNotFound.
	Get(sku string) (StockItem, error)
	// AdjustQuantity атомарно меняет quantity на delta.
	// Guard: quantity + delta >= 0 и quantity + delta >= reserved,
	// иначе ErrInsufficientStock.
	AdjustQuantity(sku string, delta int64) (StockItem, error)
	// Reserve атомарно увеличивает reserved на qty.
	// Guard: available >= qty, иначе ErrInsufficientStock.
	Reserve(sku string, qty int64) (StockItem, error)
	// Release атомарно уменьшает reserved на qty.
	// Guard: reserved >= qty, иначе ErrInsufficientReserved.
	Release(sku string, qty int64) (StockItem, error)
	// ConsumeReserved атомарно уменьшает quantity и reserved на qty.
	// Guard: quantity >= qty и reserved >= qty.
	ConsumeReserved(sku string, qty int64) (StockItem, error)
	// MarkRestocked проставляет отметки пополнения.
	MarkRestocked(sku string, restockedAt, nextRestockAt time.Time) (StockItem, error)
	// SetActive переключает флаг активности позиции (soft-деактивация вместо удаления).
	SetActive(sku string, active bool) (StockItem, error)
	// ListLowStock возвращает активные позиции с available <= lowStockThreshold.
	ListLowStock() ([]StockItem, error)
	// ListNeedingRestock возвращает активные позиции с available <= restockThreshold.
	ListNeedingRestock() ([]StockItem, error)
}

// ReservationRepository хранит записи об удержаниях остатка.
type ReservationRepository interface {
	// Create сохраняет новый резерв. Возвращает ErrReservationClosed,
	// если резерв с таким ID уже существует (повторная доставка запроса).
	Create(res Reservation) error
	// Get возвращает резерв по SKU и ID или ErrReservationNotFound.
	Get(sku, reservationID string) (Reservation, error)
	// Close переводит активный резерв в released/consumed.
	// Возвращает ErrReservationClosed, если резерв уже закрыт.
	Close(sku, reservationID string, status ReservationStatus) error
	// Reopen возвращает закрытый резерв в active. Используется для отката
	// Close, если парная мутация остатка не была применена.
	Reopen(sku, reservationID string) error
	// ListStale возвращает активные резервы, созданные раньше cutoff.
	ListStale(cutoff time.Time, limit int) ([]Reservation, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetByNumber возвращает заказ по человекочитаемому номеру.
	GetByNumber(orderNumber string) (Order, error)
	// ListByCustomer возвращает страницу заказов клиента, свежие первыми.
	ListByCustomer(customerID string, page, size int) ([]Order, error)
	// ListByStatus возвращает заказы в статусе status, созданные раньше before.
	// Используется восстановлением застрявших саг после сбоя.
	ListByStatus(status OrderStatus, before time.Time, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// StatusHistoryRepository хранит append-only журнал статусов заказа.
type StatusHistoryRepository interface {
	Append(entry StatusHistoryEntry) error
	List(orderID string) ([]StatusHistoryEntry, error)
}

// CompensationLogRepository хранит журнал применённых компенсаций по заказу.
type CompensationLogRepository interface {
	Record(entry CompensationEntry) error
	List(orderID string) ([]CompensationEntry, error)
	// HasApplied сообщает, был ли шаг уже применён для заказа.
	HasApplied(orderID string, step CompensationStep) (bool, error)
}

// StockLevelCache — best-effort кэш последних известных остатков.
// Используется fallback-ответами circuit breaker и быстрыми чтениями статуса;
// расхождение с ledger допустимо и устраняется следующей записью.
type StockLevelCache interface {
	Put(item StockItem) error
	Get(sku string) (StockItem, bool, error)
}
