package domain

import "time"

// StockStatus описывает производный статус доступности позиции на складе.
type StockStatus string

const (
	// StockStatusOutOfStock — доступного остатка нет (available <= 0).
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
	// StockStatusLow — доступный остаток не превышает lowStockThreshold.
	StockStatusLow StockStatus = "LOW_STOCK"
	// StockStatusNeedsRestock — остаток не превышает restockThreshold (restock-aware путь).
	StockStatusNeedsRestock StockStatus = "NEEDS_RESTOCK"
	// StockStatusInStock — остатка достаточно.
	StockStatusInStock StockStatus = "IN_STOCK"
)

// StockItem — единственный владелец счётчиков остатка по SKU.
// Инвариант: Available == Quantity - Reserved; 0 <= Reserved <= Quantity; Quantity >= 0.
type StockItem struct {
	SKU               string
	ProductID         string
	Quantity          int64
	Reserved          int64
	LowStockThreshold int64
	RestockThreshold  int64
	IsActive          bool
	LastRestockedAt   *time.Time
	NextRestockAt     *time.Time
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available возвращает количество, не удерживаемое резервами.
func (s *StockItem) Available() int64 {
	return s.Quantity - s.Reserved
}

// Status выводит трёхуровневый статус без учёта restockThreshold.
// Порядок приоритета: OUT_OF_STOCK, LOW_STOCK, IN_STOCK.
func (s *StockItem) Status() StockStatus {
	switch {
	case s.Available() <= 0:
		return StockStatusOutOfStock
	case s.Available() <= s.LowStockThreshold:
		return StockStatusLow
	default:
		return StockStatusInStock
	}
}

// LevelStatus выводит restock-aware статус.
// Порядок приоритета: OUT_OF_STOCK, LOW_STOCK, NEEDS_RESTOCK, IN_STOCK.
func (s *StockItem) LevelStatus() StockStatus {
	switch {
	case s.Available() <= 0:
		return StockStatusOutOfStock
	case s.Available() <= s.LowStockThreshold:
		return StockStatusLow
	case s.Available() <= s.RestockThreshold:
		return StockStatusNeedsRestock
	default:
		return StockStatusInStock
	}
}

// IsLowStock сообщает, опустился ли доступный остаток до порога lowStockThreshold.
func (s *StockItem) IsLowStock() bool {
	return s.Available() <= s.LowStockThreshold
}

// CheckInvariants проверяет счётчики позиции и возвращает список нарушений.
func (s *StockItem) CheckInvariants() []error {
	var errs []error

	if s.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if s.Quantity < 0 {
		errs = append(errs, ErrQuantityNegative)
	}
	if s.Reserved < 0 || s.Reserved > s.Quantity {
		errs = append(errs, ErrReservedOutOfRange)
	}

	return errs
}

// StockLevel — срез остатка для отчётов о пополнении.
type StockLevel struct {
	SKU               string
	CurrentLevel      int64
	LowStockThreshold int64
	RestockThreshold  int64
	Status            StockStatus
}

// InventoryStatus — ответ на запрос статуса по SKU.
type InventoryStatus struct {
	SKU       string
	InStock   bool
	Available int64
	LowStock  bool
	Status    StockStatus
}
