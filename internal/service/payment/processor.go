package payment

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
)

// Processor превращает синхронные ответы платёжного провайдера в события
// платёжного топика: на ORDER_CREATED списывает оплату заказа и публикует
// payment-completed либо payment-failed, которые потребляет сага.
type Processor struct {
	gateway   domain.PaymentGateway
	orders    domain.OrderRepository
	publisher domain.EventPublisher
	logger    *log.Entry
}

// NewProcessor создаёт платёжный обработчик.
func NewProcessor(gateway domain.PaymentGateway, orders domain.OrderRepository, publisher domain.EventPublisher, logger *log.Entry) *Processor {
	if logger == nil {
		logger = log.WithField("component", "payment-processor")
	}
	return &Processor{
		gateway:   gateway,
		orders:    orders,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleMessage — kafka.MessageHandler для топика событий заказа.
// Списание запускает только ORDER_CREATED, остальные типы пропускаются.
// Ошибки одного сообщения логируются и не останавливают цикл потребления.
func (p *Processor) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	ev, err := kafka.DecodeOrderEvent(message.Value)
	if err != nil {
		p.logger.WithError(err).Warn("malformed order event, dropping")
		return nil
	}
	if ev.EventType != kafka.OrderEventCreated {
		return nil
	}
	return p.Charge(ctx, ev.OrderID)
}

// Charge списывает оплату заказа. Исход — declined, ошибка провайдера или
// успешный capture — всегда поверхностно виден как платёжное событие.
func (p *Processor) Charge(ctx context.Context, orderID string) error {
	order, err := p.orders.Get(orderID)
	if err != nil {
		if domain.IsNotFound(err) {
			p.logger.WithField("order_id", orderID).Warn("order not found for charge, dropping")
			return nil
		}
		return err
	}

	status, err := p.gateway.ProcessPayment(ctx, order.ID, order.TotalMinor, order.Currency)
	if err != nil {
		p.logger.WithError(err).WithField("order_id", order.ID).Warn("payment processing failed")
		return p.publish(kafka.PaymentEventFailed, order)
	}
	if status == domain.PaymentStatusDeclined {
		return p.publish(kafka.PaymentEventFailed, order)
	}

	if status == domain.PaymentStatusAuthorized {
		status, err = p.gateway.Capture(ctx, order.ID)
		if err != nil {
			p.logger.WithError(err).WithField("order_id", order.ID).Warn("payment capture failed")
			return p.publish(kafka.PaymentEventFailed, order)
		}
		if status != domain.PaymentStatusCaptured {
			return p.publish(kafka.PaymentEventFailed, order)
		}
	}

	return p.publish(kafka.PaymentEventCompleted, order)
}

// Refund возвращает оплату заказа и публикует payment-refunded.
func (p *Processor) Refund(ctx context.Context, orderID string) error {
	order, err := p.orders.Get(orderID)
	if err != nil {
		return err
	}

	status, err := p.gateway.Refund(ctx, order.ID, order.TotalMinor, order.Currency)
	if err != nil {
		p.logger.WithError(err).WithField("order_id", order.ID).Warn("payment refund failed")
		return p.publish(kafka.PaymentEventFailed, order)
	}
	if status != domain.PaymentStatusRefunded {
		return p.publish(kafka.PaymentEventFailed, order)
	}
	return p.publish(kafka.PaymentEventRefunded, order)
}

func (p *Processor) publish(kind kafka.PaymentEventKind, order domain.Order) error {
	payload, err := kafka.EncodePaymentEvent(kafka.PaymentEvent{
		Kind:        kind,
		OrderID:     order.ID,
		PaymentID:   uuid.NewString(),
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.publisher.Publish(kafka.TopicPaymentEvents, order.ID, payload)
}
