package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics для Kafka
const (
	TopicInventoryEvents = "ecom.inventory.events"
	TopicPaymentEvents   = "ecom.payment.events"
	TopicOrderEvents     = "ecom.order.events"
	TopicDeadLetterQueue = "ecom.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// InventoryEventKind — закрытое множество видов событий склада.
// Строковый eventType декодируется в Kind один раз на границе шины;
// незнакомый тег даёт явный InventoryEventUnknown, а не тихий fallthrough.
type InventoryEventKind int

const (
	InventoryEventUnknown InventoryEventKind = iota
	InventoryEventCreated
	InventoryEventAdjusted
	InventoryEventReserved
	InventoryEventReleased
	InventoryEventConsumed
	InventoryEventRestocked
	InventoryEventOutOfStock
)

// Строковые теги событий склада на проводе (формат исходной системы).
const (
	inventoryTypeCreated    = "inventory-created"
	inventoryTypeAdjusted   = "stock-adjusted"
	inventoryTypeReserved   = "stock-reserved"
	inventoryTypeReleased   = "stock-released"
	inventoryTypeConsumed   = "reserved-stock-consumed"
	inventoryTypeRestocked  = "inventory-restocked"
	inventoryTypeOutOfStock = "inventory-out-of-stock"
)

var inventoryKindByType = map[string]InventoryEventKind{
	inventoryTypeCreated:    InventoryEventCreated,
	inventoryTypeAdjusted:   InventoryEventAdjusted,
	inventoryTypeReserved:   InventoryEventReserved,
	inventoryTypeReleased:   InventoryEventReleased,
	inventoryTypeConsumed:   InventoryEventConsumed,
	inventoryTypeRestocked:  InventoryEventRestocked,
	inventoryTypeOutOfStock: InventoryEventOutOfStock,
}

var inventoryTypeByKind = map[InventoryEventKind]string{
	InventoryEventCreated:    inventoryTypeCreated,
	InventoryEventAdjusted:   inventoryTypeAdjusted,
	InventoryEventReserved:   inventoryTypeReserved,
	InventoryEventReleased:   inventoryTypeReleased,
	InventoryEventConsumed:   inventoryTypeConsumed,
	InventoryEventRestocked:  inventoryTypeRestocked,
	InventoryEventOutOfStock: inventoryTypeOutOfStock,
}

// String возвращает проводной тег вида события ("unknown" для незнакомого).
func (k InventoryEventKind) String() string {
	if tag, ok := inventoryTypeByKind[k]; ok {
		return tag
	}
	return "unknown"
}

// InventoryEvent — декодированное событие склада.
type InventoryEvent struct {
	Kind          InventoryEventKind
	RawType       string
	SKU           string
	ProductID     string
	OrderID       string
	ReservationID string
	Quantity      int64
	Reserved      int64
	Available     int64
	Reason        string
	Timestamp     time.Time
}

// inventoryEventWire — представление события склада на проводе.
type inventoryEventWire struct {
	EventType     string `json:"eventType"`
	SKUCode       string `json:"skuCode,omitempty"`
	ProductID     string `json:"productId,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	ReservationID string `json:"reservationId,omitempty"`
	Quantity      int64  `json:"quantity"`
	Reserved      int64  `json:"reservedQuantity"`
	Available     int64  `json:"availableQuantity"`
	Reason        string `json:"reason,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// DecodeInventoryEvent разбирает payload события склада.
// Незнакомый eventType не является ошибкой: возвращается событие с Kind == Unknown.
func DecodeInventoryEvent(data []byte) (InventoryEvent, error) {
	var wire inventoryEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return InventoryEvent{}, fmt.Errorf("decode inventory event: %w", err)
	}
	if wire.EventType == "" {
		return InventoryEvent{}, fmt.Errorf("decode inventory event: missing eventType")
	}

	return InventoryEvent{
		Kind:          inventoryKindByType[wire.EventType],
		RawType:       wire.EventType,
		SKU:           wire.SKUCode,
		ProductID:     wire.ProductID,
		OrderID:       wire.OrderID,
		ReservationID: wire.ReservationID,
		Quantity:      wire.Quantity,
		Reserved:      wire.Reserved,
		Available:     wire.Available,
		Reason:        wire.Reason,
		Timestamp:     parseEventTime(wire.Timestamp),
	}, nil
}

// EncodeInventoryEvent сериализует событие склада для публикации.
func EncodeInventoryEvent(ev InventoryEvent) ([]byte, error) {
	rawType := ev.RawType
	if rawType == "" {
		rawType = inventoryTypeByKind[ev.Kind]
	}
	if rawType == "" {
		return nil, fmt.Errorf("encode inventory event: unknown kind %d", ev.Kind)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(inventoryEventWire{
		EventType:     rawType,
		SKUCode:       ev.SKU,
		ProductID:     ev.ProductID,
		OrderID:       ev.OrderID,
		ReservationID: ev.ReservationID,
		Quantity:      ev.Quantity,
		Reserved:      ev.Reserved,
		Available:     ev.Available,
		Reason:        ev.Reason,
		Timestamp:     ts.Format(time.RFC3339Nano),
	})
}

// PaymentEventKind — закрытое множество видов платёжных событий.
type PaymentEventKind int

const (
	PaymentEventUnknown PaymentEventKind = iota
	PaymentEventCompleted
	PaymentEventReceived
	PaymentEventCaptured
	PaymentEventFailed
	PaymentEventRefunded
	PaymentEventCancelled
)

const (
	paymentTypeCompleted = "payment-completed"
	paymentTypeReceived  = "payment-received"
	paymentTypeCaptured  = "payment-captured"
	paymentTypeFailed    = "payment-failed"
	paymentTypeRefunded  = "payment-refunded"
	paymentTypeCancelled = "payment-cancelled"
)

var paymentKindByType = map[string]PaymentEventKind{
	paymentTypeCompleted: PaymentEventCompleted,
	paymentTypeReceived:  PaymentEventReceived,
	paymentTypeCaptured:  PaymentEventCaptured,
	paymentTypeFailed:    PaymentEventFailed,
	paymentTypeRefunded:  PaymentEventRefunded,
	paymentTypeCancelled: PaymentEventCancelled,
}

var paymentTypeByKind = map[PaymentEventKind]string{
	PaymentEventCompleted: paymentTypeCompleted,
	PaymentEventReceived:  paymentTypeReceived,
	PaymentEventCaptured:  paymentTypeCaptured,
	PaymentEventFailed:    paymentTypeFailed,
	PaymentEventRefunded:  paymentTypeRefunded,
	PaymentEventCancelled: paymentTypeCancelled,
}

// PaymentEvent — декодированное событие платёжного провайдера.
type PaymentEvent struct {
	Kind        PaymentEventKind
	RawType     string
	OrderID     string
	PaymentID   string
	AmountMinor int64
	Currency    string
	Timestamp   time.Time
}

type paymentEventWire struct {
	EventType   string `json:"eventType"`
	OrderID     string `json:"orderId"`
	PaymentID   string `json:"paymentId,omitempty"`
	AmountMinor int64  `json:"amountMinor,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// DecodePaymentEvent разбирает payload платёжного события.
func DecodePaymentEvent(data []byte) (PaymentEvent, error) {
	var wire paymentEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return PaymentEvent{}, fmt.Errorf("decode payment event: %w", err)
	}
	if wire.EventType == "" {
		return PaymentEvent{}, fmt.Errorf("decode payment event: missing eventType")
	}

	return PaymentEvent{
		Kind:        paymentKindByType[wire.EventType],
		RawType:     wire.EventType,
		OrderID:     wire.OrderID,
		PaymentID:   wire.PaymentID,
		AmountMinor: wire.AmountMinor,
		Currency:    wire.Currency,
		Timestamp:   parseEventTime(wire.Timestamp),
	}, nil
}

// EncodePaymentEvent сериализует платёжное событие для публикации.
func EncodePaymentEvent(ev PaymentEvent) ([]byte, error) {
	rawType := ev.RawType
	if rawType == "" {
		rawType = paymentTypeByKind[ev.Kind]
	}
	if rawType == "" {
		return nil, fmt.Errorf("encode payment event: unknown kind %d", ev.Kind)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(paymentEventWire{
		EventType:   rawType,
		OrderID:     ev.OrderID,
		PaymentID:   ev.PaymentID,
		AmountMinor: ev.AmountMinor,
		Currency:    ev.Currency,
		Timestamp:   ts.Format(time.RFC3339Nano),
	})
}

// Типы lifecycle-событий заказа (формат исходной системы, UPPER_SNAKE).
const (
	OrderEventCreated       = "ORDER_CREATED"
	OrderEventStatusUpdated = "ORDER_STATUS_UPDATED"
	OrderEventCancelled     = "ORDER_CANCELLED"
)

// OrderEvent — lifecycle-событие заказа.
type OrderEvent struct {
	EventType   string `json:"eventType"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber,omitempty"`
	CustomerID  string `json:"customerId,omitempty"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// NewOrderEvent собирает событие заказа с текущим временем.
func NewOrderEvent(eventType, orderID, orderNumber, customerID, status, message string) OrderEvent {
	return OrderEvent{
		EventType:   eventType,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		CustomerID:  customerID,
		Status:      status,
		Message:     message,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// DecodeOrderEvent разбирает payload события заказа.
func DecodeOrderEvent(data []byte) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event: %w", err)
	}
	if ev.EventType == "" {
		return OrderEvent{}, fmt.Errorf("decode order event: missing eventType")
	}
	return ev, nil
}

func parseEventTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	return time.Time{}
}
