package domain

import "errors"

var (
	// Ошибка отсутствующего SKU.
	ErrSKURequired = errors.New("sku is required")
	// Ошибка отрицательного общего количества.
	ErrQuantityNegative = errors.New("quantity must be non-negative")
	// Ошибка нарушения диапазона резерва: 0 <= reserved <= quantity.
	ErrReservedOutOfRange = errors.New("reserved quantity out of range")
	// ErrStockItemNotFound возвращается, если позиция склада не найдена.
	ErrStockItemNotFound = errors.New("stock item not found")
	// ErrSKUExists возвращается при попытке создать позицию с уже занятым SKU.
	ErrSKUExists = errors.New("stock item already exists for sku")
	// ErrInsufficientStock — защитное условие не выполнено: доступного остатка меньше запрошенного.
	ErrInsufficientStock = errors.New("insufficient available stock")
	// ErrInsufficientReserved — снимаемый резерв больше удерживаемого.
	ErrInsufficientReserved = errors.New("insufficient reserved stock")
	// ErrStockItemInactive — позиция деактивирована и не принимает операции.
	ErrStockItemInactive = errors.New("stock item is inactive")

	// ErrReservationNotFound возвращается при release/consume по неизвестному резерву.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationMismatch — заявленное количество не совпадает с удерживаемым резервом.
	ErrReservationMismatch = errors.New("reservation quantity mismatch")
	// ErrReservationClosed — резерв уже снят или израсходован.
	ErrReservationClosed = errors.New("reservation already released or consumed")

	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("order total must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition — переход запрещён таблицей статусов или терминальным статусом.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrOrderNotCancellable — прямая отмена допустима только из PENDING/PROCESSING.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled in its current status")

	// ErrCatalogUnavailable — временная ошибка каталога, допускает повтор.
	ErrCatalogUnavailable = errors.New("catalog service unavailable")
	// ErrProductUnavailable — каталог сообщил о нехватке товара (бизнес-ошибка).
	ErrProductUnavailable = errors.New("product not available in requested quantity")
	// ErrCircuitOpen — circuit breaker разомкнут, вызов отклонён без обращения к ресурсу.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrEventPublish — ошибка публикации события; мутация при этом уже зафиксирована.
	ErrEventPublish = errors.New("event publish failed")
)

// IsNotFound относит ошибку к классу not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStockItemNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsConflict относит ошибку к классу conflict: нарушение защитного условия,
// дубликат SKU, несовпадение резерва или версии, запрещённый переход статуса.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientReserved) ||
		errors.Is(err, ErrSKUExists) ||
		errors.Is(err, ErrReservationMismatch) ||
		errors.Is(err, ErrReservationClosed) ||
		errors.Is(err, ErrOrderVersionConflict) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsInvalidOperation относит ошибку к классу bad-request.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrSKURequired) ||
		errors.Is(err, ErrQuantityNegative) ||
		errors.Is(err, ErrReservedOutOfRange) ||
		errors.Is(err, ErrStockItemInactive) ||
		errors.Is(err, ErrCustomerRequired) ||
		errors.Is(err, ErrItemsRequired) ||
		errors.Is(err, ErrAmountNegative) ||
		errors.Is(err, ErrItemQtyInvalid) ||
		errors.Is(err, ErrItemPriceInvalid) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrOrderNotCancellable)
}

// IsUnavailable относит ошибку к классу unavailable: таймаут коллаборатора,
// разомкнутый circuit breaker. Такие ошибки допускают ограниченный повтор.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable) ||
		errors.Is(err, ErrCircuitOpen)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
