package domain

import "context"

// AvailabilityItem — позиция запроса к каталогу: товар и требуемое количество.
// Отрицательный Qty в UpdateInventory означает списание, положительный — возврат.
type AvailabilityItem struct {
	ProductID string
	SKU       string
	Qty       int64
}

// CatalogClient описывает синхронный контракт каталога, используемый при создании заказа.
type CatalogClient interface {
	// CheckAvailability сообщает, доступны ли все позиции в требуемом количестве.
	CheckAvailability(ctx context.Context, items []AvailabilityItem) (bool, error)
	// UpdateInventory применяет знаковые дельты к остаткам каталога.
	// Обратный вызов с противоположным знаком — компенсация при отмене.
	UpdateInventory(ctx context.Context, items []AvailabilityItem) error
}

// PaymentStatus — статус операции платёжного провайдера.
type PaymentStatus string

const (
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusDeclined   PaymentStatus = "declined"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// PaymentGateway описывает синхронный контракт платёжного провайдера.
// Результат операции дополнительно всплывает событием в payment-топике.
type PaymentGateway interface {
	ProcessPayment(ctx context.Context, orderID string, amountMinor int64, currency string) (PaymentStatus, error)
	Capture(ctx context.Context, orderID string) (PaymentStatus, error)
	Refund(ctx context.Context, orderID string, amountMinor int64, currency string) (PaymentStatus, error)
}

// EventPublisher публикует доменные события в шину.
// Публикация best-effort: ошибка логируется вызывающей стороной и не откатывает
// уже зафиксированную мутацию.
type EventPublisher interface {
	Publish(topic string, key string, payload []byte) error
}
