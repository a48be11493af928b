package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, резервирование и оплата ещё не выполнены.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing — склад подтвердил резервирование позиций.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusPaid — оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusCancelled — заказ отменён; терминальный статус.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded — средства возвращены; терминальный статус.
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// IsTerminal сообщает, является ли статус терминальным.
// Из терминального статуса переходы запрещены: это защита от stale-событий,
// которые шина доставляет без гарантий порядка.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// IsCancellable сообщает, допускает ли статус прямую отмену заказа клиентом.
func (s OrderStatus) IsCancellable() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

// CanTransitionTo проверяет допустимость перехода по таблице статусов.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case OrderStatusPending:
		return target == OrderStatusProcessing || target == OrderStatusPaid || target == OrderStatusCancelled
	case OrderStatusProcessing:
		return target == OrderStatusPaid || target == OrderStatusCancelled
	case OrderStatusPaid:
		return target == OrderStatusRefunded || target == OrderStatusCancelled
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID             string
	ProductID      string
	SKU            string
	Qty            int64
	UnitPriceMinor int64
	CreatedAt      time.Time
}

// LineTotalMinor возвращает стоимость позиции в минимальных денежных единицах.
func (i OrderItem) LineTotalMinor() int64 {
	return i.Qty * i.UnitPriceMinor
}

// StatusHistoryEntry — неизменяемая запись из журнала статусов заказа.
type StatusHistoryEntry struct {
	ID        string
	OrderID   string
	Status    OrderStatus
	Message   string
	CreatedAt time.Time
}

// Order агрегирует состояние заказа, его позиции и журнал статусов.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerID    string
	Status        OrderStatus
	Currency      string
	TotalMinor    int64
	Items         []OrderItem
	StatusHistory []StatusHistoryEntry
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// ComputeTotalMinor пересчитывает сумму заказа из позиций.
func (o *Order) ComputeTotalMinor() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.LineTotalMinor()
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.LineTotalMinor()
	}
	if calc != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
