package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom-core/internal/storage/memory"
)

type stubPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	topic   string
	key     string
	payload []byte
}

func (p *stubPublisher) Publish(topic string, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{topic: topic, key: key, payload: payload})
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type fixture struct {
	coordinator *Coordinator
	orders      domain.OrderRepository
	history     domain.StatusHistoryRepository
	publisher   *stubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	orders := memory.NewOrderRepository()
	history := memory.NewStatusHistoryRepository()
	publisher := &stubPublisher{}

	return &fixture{
		coordinator: NewCoordinator(orders, history, publisher, nil, logger.WithField("component", "test")),
		orders:      orders,
		history:     history,
		publisher:   publisher,
	}
}

func (f *fixture) seedOrder(t *testing.T, status domain.OrderStatus) domain.Order {
	t.Helper()
	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		OrderNumber: "ORD-TEST",
		CustomerID:  "customer-1",
		Status:      status,
		Currency:    "USD",
		TotalMinor:  1000,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.orders.Create(order); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	return order
}

func (f *fixture) orderStatus(t *testing.T, id string) domain.OrderStatus {
	t.Helper()
	order, err := f.orders.Get(id)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	return order.Status
}

func paymentMessage(t *testing.T, kind kafka.PaymentEventKind, orderID string) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := kafka.EncodePaymentEvent(kafka.PaymentEvent{
		Kind:        kind,
		OrderID:     orderID,
		PaymentID:   "pay-1",
		AmountMinor: 1000,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("encode payment event failed: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: payload}
}

func inventoryMessage(t *testing.T, kind kafka.InventoryEventKind, orderID string) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := kafka.EncodeInventoryEvent(kafka.InventoryEvent{
		Kind:          kind,
		SKU:           "sku-1",
		Quantity:      1,
		OrderID:       orderID,
		ReservationID: orderID,
	})
	if err != nil {
		t.Fatalf("encode inventory event failed: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: kafka.TopicInventoryEvents, Value: payload}
}

func TestPaymentCompletedMovesOrderToPaid(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusProcessing)

	if err := f.coordinator.HandleMessage(context.Background(), paymentMessage(t, kafka.PaymentEventCompleted, order.ID)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", got)
	}

	entries, err := f.history.List(order.ID)
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}

	if f.publisher.count() != 1 {
		t.Fatalf("expected one status event, got %d", f.publisher.count())
	}
	var ev kafka.OrderEvent
	if err := json.Unmarshal(f.publisher.messages[0].payload, &ev); err != nil {
		t.Fatalf("decode published event failed: %v", err)
	}
	if ev.EventType != kafka.OrderEventStatusUpdated || ev.Status != string(domain.OrderStatusPaid) {
		t.Fatalf("unexpected published event: %+v", ev)
	}
}

func TestPaymentFailedCancelsOrder(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	if err := f.coordinator.HandleMessage(context.Background(), paymentMessage(t, kafka.PaymentEventFailed, order.ID)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	updated, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", updated.Status)
	}
	if updated.CancelledAt == nil {
		t.Fatal("cancellation timestamp should be set")
	}
}

func TestPaymentRefundedFromPaid(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPaid)

	if err := f.coordinator.HandleMessage(context.Background(), paymentMessage(t, kafka.PaymentEventRefunded, order.ID)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", got)
	}
}

func TestInventoryReservedMovesOrderToProcessing(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	if err := f.coordinator.HandleMessage(context.Background(), inventoryMessage(t, kafka.InventoryEventReserved, order.ID)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", got)
	}
}

func TestInventoryOutOfStockCancelsOrder(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	if err := f.coordinator.HandleMessage(context.Background(), inventoryMessage(t, kafka.InventoryEventOutOfStock, order.ID)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got)
	}
}

func TestStaleEventAfterTerminalStatusIsDiscarded(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusCancelled)

	// Задержанное reserved после cancelled не возвращает заказ в работу.
	if err := f.coordinator.HandleMessage(context.Background(), inventoryMessage(t, kafka.InventoryEventReserved, order.ID)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusCancelled {
		t.Fatalf("terminal status must not change, got %s", got)
	}
	if f.publisher.count() != 0 {
		t.Fatalf("discarded event must not publish, got %d messages", f.publisher.count())
	}
}

func TestDuplicateEventIsNoOp(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusProcessing)

	msg := paymentMessage(t, kafka.PaymentEventCompleted, order.ID)
	if err := f.coordinator.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}
	if err := f.coordinator.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("duplicate handle failed: %v", err)
	}

	entries, err := f.history.List(order.ID)
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("duplicate must not append history, got %d entries", len(entries))
	}
	if f.publisher.count() != 1 {
		t.Fatalf("duplicate must not publish, got %d messages", f.publisher.count())
	}
}

func TestDisallowedTransitionIsDiscarded(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	// Возврат платежа по ещё не оплаченному заказу.
	if err := f.coordinator.HandleMessage(context.Background(), paymentMessage(t, kafka.PaymentEventRefunded, order.ID)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusPending {
		t.Fatalf("disallowed transition must not apply, got %s", got)
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	f := newFixture(t)

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: []byte("{not json")}
	if err := f.coordinator.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("malformed payload must be dropped, got %v", err)
	}

	// Без eventType payload тоже отбрасывается.
	msg = &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: []byte(`{"orderId":"o-1"}`)}
	if err := f.coordinator.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("payload without eventType must be dropped, got %v", err)
	}
}

func TestUnknownEventTypeIsDropped(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	payload := []byte(`{"eventType":"payment-disputed","orderId":"` + order.ID + `","timestamp":"2026-02-01T10:00:00Z"}`)
	msg := &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: payload}
	if err := f.coordinator.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("unknown event type must be dropped, got %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusPending {
		t.Fatalf("unknown event must not change status, got %s", got)
	}
}

func TestEventForUnknownOrderIsDropped(t *testing.T) {
	f := newFixture(t)

	if err := f.coordinator.HandleMessage(context.Background(), paymentMessage(t, kafka.PaymentEventCompleted, "no-such-order")); err != nil {
		t.Fatalf("event for unknown order must be dropped, got %v", err)
	}
}

func TestReservationIDCorrelationFallback(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	payload, err := kafka.EncodeInventoryEvent(kafka.InventoryEvent{
		Kind:          kafka.InventoryEventReserved,
		SKU:           "sku-1",
		Quantity:      1,
		ReservationID: order.ID,
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicInventoryEvents, Value: payload}
	if err := f.coordinator.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING via reservationId correlation, got %s", got)
	}
}

func TestNonOrderInventoryEventsIgnored(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	for _, kind := range []kafka.InventoryEventKind{
		kafka.InventoryEventAdjusted,
		kafka.InventoryEventReleased,
		kafka.InventoryEventRestocked,
	} {
		if err := f.coordinator.HandleMessage(context.Background(), inventoryMessage(t, kind, order.ID)); err != nil {
			t.Fatalf("handle %v failed: %v", kind, err)
		}
	}

	if got := f.orderStatus(t, order.ID); got != domain.OrderStatusPending {
		t.Fatalf("non-order events must not change status, got %s", got)
	}
}
