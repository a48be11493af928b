package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom-core/internal/metrics"
)

// Coordinator ведёт статус заказа по событиям платёжного провайдера и склада.
//
// Шина доставляет события at-least-once и без порядка, поэтому применение
// перехода всегда начинается с двух проверок: повторная доставка события,
// дающего тот же статус, — no-op; переход из терминального статуса запрещён
// независимо от таблицы переходов. Вторая проверка компенсирует отсутствие
// гарантий порядка: задержанное "reserved" после "cancelled" отбрасывается.
type Coordinator struct {
	orders    domain.OrderRepository
	history   domain.StatusHistoryRepository
	publisher domain.EventPublisher
	metrics   *metrics.SagaMetrics
	logger    *log.Entry
}

// NewCoordinator создаёт координатор саги заказов.
func NewCoordinator(
	orders domain.OrderRepository,
	history domain.StatusHistoryRepository,
	publisher domain.EventPublisher,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *Coordinator {
	if logger == nil {
		logger = log.New().WithField("component", "order-saga")
	}
	return &Coordinator{
		orders:    orders,
		history:   history,
		publisher: publisher,
		metrics:   sagaMetrics,
		logger:    logger,
	}
}

// HandleMessage — точка входа consumer-а: диспетчеризация по топику.
// Ошибки одного сообщения (кривой payload, неизвестный заказ) логируются,
// и сообщение отбрасывается: цикл потребления не останавливается.
func (c *Coordinator) HandleMessage(_ context.Context, message *sarama.ConsumerMessage) error {
	switch message.Topic {
	case kafka.TopicPaymentEvents:
		return c.handlePaymentMessage(message.Value)
	case kafka.TopicInventoryEvents:
		return c.handleInventoryMessage(message.Value)
	default:
		c.logger.WithField("topic", message.Topic).Warn("message from unexpected topic, dropping")
		return nil
	}
}

func (c *Coordinator) handlePaymentMessage(payload []byte) error {
	ev, err := kafka.DecodePaymentEvent(payload)
	if err != nil {
		c.logger.WithError(err).Warn("malformed payment event, dropping")
		if c.metrics != nil {
			c.metrics.RecordConsumeError()
		}
		return nil
	}

	logger := c.logger.WithFields(log.Fields{
		"event_type": ev.RawType,
		"order_id":   ev.OrderID,
	})

	switch ev.Kind {
	case kafka.PaymentEventCompleted, kafka.PaymentEventReceived, kafka.PaymentEventCaptured:
		return c.applyTransition(ev.OrderID, domain.OrderStatusPaid, fmt.Sprintf("Payment confirmed (%s)", ev.RawType))
	case kafka.PaymentEventFailed:
		return c.applyTransition(ev.OrderID, domain.OrderStatusCancelled, "Payment failed")
	case kafka.PaymentEventRefunded:
		return c.applyTransition(ev.OrderID, domain.OrderStatusRefunded, "Payment refunded")
	case kafka.PaymentEventCancelled:
		logger.Debug("payment cancellation event ignored")
		return nil
	default:
		logger.Warn("unrecognized payment event type, dropping")
		if c.metrics != nil {
			c.metrics.RecordUnknownEvent()
		}
		return nil
	}
}

func (c *Coordinator) handleInventoryMessage(payload []byte) error {
	ev, err := kafka.DecodeInventoryEvent(payload)
	if err != nil {
		c.logger.WithError(err).Warn("malformed inventory event, dropping")
		if c.metrics != nil {
			c.metrics.RecordConsumeError()
		}
		return nil
	}

	// Склад коррелирует резерв с заказом: orderId, либо reservationId,
	// когда резерв создан от имени заказа.
	orderID := ev.OrderID
	if orderID == "" {
		orderID = ev.ReservationID
	}

	logger := c.logger.WithFields(log.Fields{
		"event_type": ev.RawType,
		"sku":        ev.SKU,
		"order_id":   orderID,
	})

	switch ev.Kind {
	case kafka.InventoryEventReserved:
		if orderID == "" {
			logger.Debug("reservation without order correlation, ignoring")
			return nil
		}
		return c.applyTransition(orderID, domain.OrderStatusProcessing, "Inventory reserved")
	case kafka.InventoryEventOutOfStock:
		if orderID == "" {
			logger.Debug("out-of-stock without order correlation, ignoring")
			return nil
		}
		return c.applyTransition(orderID, domain.OrderStatusCancelled, "Inventory out of stock")
	case kafka.InventoryEventCreated, kafka.InventoryEventAdjusted, kafka.InventoryEventReleased,
		kafka.InventoryEventConsumed, kafka.InventoryEventRestocked:
		logger.Debug("inventory event does not affect order status")
		return nil
	default:
		logger.Warn("unrecognized inventory event type, dropping")
		if c.metrics != nil {
			c.metrics.RecordUnknownEvent()
		}
		return nil
	}
}

// applyTransition применяет переход статуса с optimistic-lock retry.
func (c *Coordinator) applyTransition(orderID string, target domain.OrderStatus, message string) error {
	logger := c.logger.WithFields(log.Fields{
		"order_id": orderID,
		"target":   target,
	})

	order, err := c.orders.Get(orderID)
	if err != nil {
		if domain.IsNotFound(err) {
			logger.Warn("order not found for event, dropping")
			if c.metrics != nil {
				c.metrics.RecordConsumeError()
			}
			return nil
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	const maxAttempts = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Повторная доставка события, дающего тот же статус, — no-op.
		if order.Status == target {
			logger.Debug("order already in target status, duplicate event ignored")
			if c.metrics != nil {
				c.metrics.RecordDiscarded("duplicate")
			}
			return nil
		}

		// Терминальный guard: stale-событие не возвращает заказ в работу.
		if order.Status.IsTerminal() {
			logger.WithField("status", order.Status).Info("order in terminal status, stale event discarded")
			if c.metrics != nil {
				c.metrics.RecordDiscarded("terminal")
			}
			return nil
		}

		if !order.Status.CanTransitionTo(target) {
			logger.WithField("status", order.Status).Warn("transition not allowed, event discarded")
			if c.metrics != nil {
				c.metrics.RecordDiscarded("invalid")
			}
			return nil
		}

		previous := order.Status
		order.Status = target
		order.UpdatedAt = time.Now().UTC()
		if target == domain.OrderStatusCancelled {
			cancelledAt := order.UpdatedAt
			order.CancelledAt = &cancelledAt
		}

		if err := c.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxAttempts {
				logger.WithField("attempt", attempt).Warn("version conflict, reloading order")
				fresh, loadErr := c.orders.Get(orderID)
				if loadErr != nil {
					return fmt.Errorf("reload order %s: %w", orderID, loadErr)
				}
				order = fresh
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt-1)))
				continue
			}
			return fmt.Errorf("persist order %s status: %w", orderID, err)
		}

		c.recordTransition(order, previous, message)
		return nil
	}

	return domain.ErrOrderVersionConflict
}

// recordTransition добавляет запись журнала и публикует ORDER_STATUS_UPDATED.
func (c *Coordinator) recordTransition(order domain.Order, previous domain.OrderStatus, message string) {
	if message == "" {
		message = fmt.Sprintf("Status changed from %s to %s", previous, order.Status)
	}

	entry := domain.StatusHistoryEntry{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Status:    order.Status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.history.Append(entry); err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Error("failed to append status history")
	}

	c.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     previous,
		"to":       order.Status,
	}).Info("order status updated")

	if c.metrics != nil {
		c.metrics.RecordTransition(string(order.Status))
	}

	c.publishStatusEvent(order, message)
}

func (c *Coordinator) publishStatusEvent(order domain.Order, message string) {
	if c.publisher == nil {
		return
	}

	ev := kafka.NewOrderEvent(
		kafka.OrderEventStatusUpdated,
		order.ID,
		order.OrderNumber,
		order.CustomerID,
		string(order.Status),
		message,
	)
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Error("failed to encode order event")
		return
	}
	if err := c.publisher.Publish(kafka.TopicOrderEvents, order.ID, payload); err != nil {
		// Публикация best-effort: статус уже сохранён.
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to publish order status event")
	}
}
