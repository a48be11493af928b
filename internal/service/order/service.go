package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
)

const (
	// Параметры повторов синхронных вызовов каталога: 3 попытки с фиксированной задержкой.
	catalogMaxAttempts = 3
	catalogRetryDelay  = 1 * time.Second

	defaultPageSize = 20
	maxPageSize     = 100
)

// Service реализует создание и жизненный цикл заказа.
//
// createOrder — сага без глобальной блокировки: проверка доступности и
// списание остатка выполняются синхронными вызовами каталога вне локальной
// транзакции сохранения заказа. Каждый применённый побочный эффект
// записывается в журнал компенсаций, чтобы восстановление после сбоя между
// шагами было детерминированным.
type Service struct {
	orders       domain.OrderRepository
	history      domain.StatusHistoryRepository
	compensation domain.CompensationLogRepository
	catalog      domain.CatalogClient
	publisher    domain.EventPublisher
	logger       *log.Entry

	retryDelay time.Duration
}

// NewService создаёт сервис заказов.
func NewService(
	orders domain.OrderRepository,
	history domain.StatusHistoryRepository,
	compensation domain.CompensationLogRepository,
	catalog domain.CatalogClient,
	publisher domain.EventPublisher,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &Service{
		orders:       orders,
		history:      history,
		compensation: compensation,
		catalog:      catalog,
		publisher:    publisher,
		logger:       logger,
		retryDelay:   catalogRetryDelay,
	}
}

// SetRetryDelay переопределяет задержку повторов (для тестов).
func (s *Service) SetRetryDelay(delay time.Duration) {
	s.retryDelay = delay
}

// ItemParams — позиция запроса на создание заказа.
type ItemParams struct {
	ProductID      string
	SKU            string
	Qty            int64
	UnitPriceMinor int64
}

// CreateParams — параметры создания заказа.
type CreateParams struct {
	CustomerID string
	Currency   string
	Items      []ItemParams
}

// CreateOrder выполняет сагу создания заказа.
//
// Частичный успех по позициям невозможен: либо все позиции проходят проверку
// доступности и все списания выполняются, либо вызов завершается ошибкой.
func (s *Service) CreateOrder(ctx context.Context, params CreateParams) (domain.Order, error) {
	if params.CustomerID == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if len(params.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}
	for _, item := range params.Items {
		if item.Qty <= 0 {
			return domain.Order{}, domain.ErrItemQtyInvalid
		}
		if item.UnitPriceMinor < 0 {
			return domain.Order{}, domain.ErrItemPriceInvalid
		}
	}

	// Шаг 2: синхронная проверка доступности у каталога с ограниченным повтором.
	availItems := toAvailabilityItems(params.Items, -1)
	available, err := s.checkAvailability(ctx, toAvailabilityItems(params.Items, 1))
	if err != nil {
		return domain.Order{}, err
	}
	if !available {
		return domain.Order{}, domain.ErrProductUnavailable
	}

	// Шаг 3: сохраняем заказ PENDING с начальной записью журнала.
	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		OrderNumber: generateOrderNumber(),
		CustomerID:  params.CustomerID,
		Status:      domain.OrderStatusPending,
		Currency:    params.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, item := range params.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			CreatedAt:      now,
		})
	}
	order.TotalMinor = order.ComputeTotalMinor()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	if err := s.orders.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}
	s.appendHistory(order.ID, domain.OrderStatusPending, "Order created")

	// Шаг 4: синхронное списание остатка. Обратный вызов с противоположным
	// знаком — компенсация при отмене.
	if err := s.updateCatalogInventory(ctx, availItems); err != nil {
		// Списание не применено: заказ детерминированно отменяется,
		// вызов createOrder завершается ошибкой целиком.
		s.failOrder(order, "Stock decrement failed")
		return domain.Order{}, err
	}
	s.recordCompensation(order.ID, domain.CompensationStepStockDecremented, "stock decremented for all items")

	// Шаг 5: публикация lifecycle-события.
	s.publishOrderEvent(order, kafka.OrderEventCreated, "Order created")
	s.recordCompensation(order.ID, domain.CompensationStepEventPublished, kafka.OrderEventCreated)

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"customer_id":  order.CustomerID,
		"total_minor":  order.TotalMinor,
	}).Info("order created")

	return order, nil
}

// GetOrder возвращает заказ с журналом статусов.
func (s *Service) GetOrder(id string) (domain.Order, error) {
	order, err := s.orders.Get(id)
	if err != nil {
		return domain.Order{}, err
	}
	return s.attachHistory(order)
}

// GetOrderByNumber возвращает заказ по человекочитаемому номеру.
func (s *Service) GetOrderByNumber(orderNumber string) (domain.Order, error) {
	order, err := s.orders.GetByNumber(orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	return s.attachHistory(order)
}

// ListCustomerOrders возвращает страницу заказов клиента.
func (s *Service) ListCustomerOrders(customerID string, page, size int) ([]domain.Order, error) {
	if customerID == "" {
		return nil, domain.ErrCustomerRequired
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page < 0 {
		page = 0
	}
	return s.orders.ListByCustomer(customerID, page, size)
}

// UpdateStatus применяет переход статуса, запрошенный через API.
// Действует тот же терминальный guard, что и у координатора событий.
func (s *Service) UpdateStatus(orderID string, target domain.OrderStatus, message string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == target {
		return order, nil
	}
	if !order.Status.CanTransitionTo(target) {
		return domain.Order{}, domain.ErrInvalidTransition
	}

	previous := order.Status
	order.Status = target
	order.UpdatedAt = time.Now().UTC()
	if err := s.orders.Save(order); err != nil {
		return domain.Order{}, err
	}
	order.Version++

	if message == "" {
		message = fmt.Sprintf("Status changed from %s to %s", previous, target)
	}
	s.appendHistory(order.ID, target, message)
	s.publishOrderEvent(order, kafka.OrderEventStatusUpdated, message)

	return order, nil
}

// CancelOrder — прямая отмена заказа клиентом.
//
// Допустима только из PENDING/PROCESSING; для PAID, CANCELLED и REFUNDED
// возвращается ErrOrderNotCancellable. Компенсация — возврат списанного
// остатка — применяется ровно один раз, по журналу компенсаций.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if !order.Status.IsCancellable() {
		return domain.Order{}, domain.ErrOrderNotCancellable
	}

	now := time.Now().UTC()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	if err := s.orders.Save(order); err != nil {
		return domain.Order{}, err
	}
	order.Version++

	if reason == "" {
		reason = "Order cancelled by customer"
	}
	s.appendHistory(order.ID, domain.OrderStatusCancelled, reason)

	s.compensateStock(ctx, order)
	s.publishOrderEvent(order, kafka.OrderEventCancelled, reason)

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"reason":   reason,
	}).Info("order cancelled")

	return order, nil
}

// RecoverStalled доигрывает или откатывает заказы, застрявшие между шагами
// createOrder после сбоя. Решение принимается по журналу компенсаций,
// а не по best-effort повтору синхронных вызовов.
func (s *Service) RecoverStalled(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stalled, err := s.orders.ListByStatus(domain.OrderStatusPending, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stalled orders: %w", err)
	}

	recovered := 0
	for _, order := range stalled {
		decremented, err := s.compensation.HasApplied(order.ID, domain.CompensationStepStockDecremented)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to read compensation log")
			continue
		}

		if !decremented {
			// Сбой до списания: заказ не имеет побочных эффектов, откатываем.
			now := time.Now().UTC()
			order.Status = domain.OrderStatusCancelled
			order.CancelledAt = &now
			order.UpdatedAt = now
			if err := s.orders.Save(order); err != nil {
				s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to cancel stalled order")
				continue
			}
			s.appendHistory(order.ID, domain.OrderStatusCancelled, "Recovered: stock was never decremented")
			recovered++
			continue
		}

		published, err := s.compensation.HasApplied(order.ID, domain.CompensationStepEventPublished)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to read compensation log")
			continue
		}
		if !published {
			// Сбой между списанием и публикацией: доигрываем публикацию.
			// Потребители идемпотентны, повторное ORDER_CREATED безопасно.
			s.publishOrderEvent(order, kafka.OrderEventCreated, "Order created (recovered)")
			s.recordCompensation(order.ID, domain.CompensationStepEventPublished, kafka.OrderEventCreated)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.WithField("count", recovered).Info("stalled orders recovered")
	}
	return recovered, nil
}

// checkAvailability опрашивает каталог с ограниченным повтором при временных ошибках.
func (s *Service) checkAvailability(ctx context.Context, items []domain.AvailabilityItem) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= catalogMaxAttempts; attempt++ {
		available, err := s.catalog.CheckAvailability(ctx, items)
		if err == nil {
			return available, nil
		}
		lastErr = err
		s.logger.WithError(err).WithField("attempt", attempt).Warn("availability check failed")
		if attempt < catalogMaxAttempts {
			time.Sleep(s.retryDelay)
		}
	}
	return false, fmt.Errorf("%w: availability check: %s", domain.ErrCatalogUnavailable, lastErr)
}

// updateCatalogInventory применяет знаковые дельты с ограниченным повтором.
func (s *Service) updateCatalogInventory(ctx context.Context, items []domain.AvailabilityItem) error {
	var lastErr error
	for attempt := 1; attempt <= catalogMaxAttempts; attempt++ {
		if err := s.catalog.UpdateInventory(ctx, items); err == nil {
			return nil
		} else {
			lastErr = err
			s.logger.WithError(err).WithField("attempt", attempt).Warn("inventory update failed")
		}
		if attempt < catalogMaxAttempts {
			time.Sleep(s.retryDelay)
		}
	}
	return fmt.Errorf("%w: inventory update: %s", domain.ErrCatalogUnavailable, lastErr)
}

// compensateStock возвращает списанный остаток ровно один раз.
func (s *Service) compensateStock(ctx context.Context, order domain.Order) {
	decremented, err := s.compensation.HasApplied(order.ID, domain.CompensationStepStockDecremented)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to read compensation log")
		return
	}
	restored, err := s.compensation.HasApplied(order.ID, domain.CompensationStepStockRestored)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to read compensation log")
		return
	}
	if !decremented || restored {
		return
	}

	items := make([]domain.AvailabilityItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, domain.AvailabilityItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Qty:       item.Qty, // положительная дельта: возврат остатка
		})
	}
	if err := s.updateCatalogInventory(ctx, items); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to restore stock on cancel")
		return
	}
	s.recordCompensation(order.ID, domain.CompensationStepStockRestored, "stock restored after cancellation")
}

// failOrder отменяет заказ, у которого не удалось списание остатка.
func (s *Service) failOrder(order domain.Order, message string) {
	now := time.Now().UTC()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	if err := s.orders.Save(order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to mark order cancelled")
		return
	}
	s.appendHistory(order.ID, domain.OrderStatusCancelled, message)
}

func (s *Service) appendHistory(orderID string, status domain.OrderStatus, message string) {
	entry := domain.StatusHistoryEntry{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.history.Append(entry); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("failed to append status history")
	}
}

func (s *Service) recordCompensation(orderID string, step domain.CompensationStep, detail string) {
	entry := domain.CompensationEntry{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Step:      step,
		Applied:   true,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.compensation.Record(entry); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"step":     step,
		}).Error("failed to record compensation entry")
	}
}

func (s *Service) attachHistory(order domain.Order) (domain.Order, error) {
	entries, err := s.history.List(order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.StatusHistory = entries
	return order, nil
}

// publishOrderEvent публикует lifecycle-событие best-effort.
func (s *Service) publishOrderEvent(order domain.Order, eventType, message string) {
	if s.publisher == nil {
		return
	}

	ev := kafka.NewOrderEvent(eventType, order.ID, order.OrderNumber, order.CustomerID, string(order.Status), message)
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to encode order event")
		return
	}
	if err := s.publisher.Publish(kafka.TopicOrderEvents, order.ID, payload); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("failed to publish order event")
	}
}

func toAvailabilityItems(items []ItemParams, sign int64) []domain.AvailabilityItem {
	result := make([]domain.AvailabilityItem, 0, len(items))
	for _, item := range items {
		result = append(result, domain.AvailabilityItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Qty:       sign * item.Qty,
		})
	}
	return result
}

func generateOrderNumber() string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	return "ORD-" + fragment
}
