package ledger

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom-core/internal/metrics"
)

const (
	defaultLowStockThreshold = 10
	defaultRestockThreshold  = 20
	// Интервал до следующего планового пополнения после restock.
	restockInterval = 14 * 24 * time.Hour
)

// RetryConfig ограничивает повторы при конфликте защитного условия.
// Повтор имеет смысл только там, где конкурентный release мог освободить
// остаток; после исчерпания попыток вызывающая сторона получает
// определённый отказ, а не бесконечный цикл.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
	}
}

// Service — складской ledger: единственный владелец счётчиков остатка по SKU.
type Service struct {
	stock        domain.StockRepository
	reservations domain.ReservationRepository
	cache        domain.StockLevelCache
	publisher    domain.EventPublisher
	breakers     *BreakerRegistry
	metrics      *metrics.LedgerMetrics
	retry        RetryConfig
	logger       *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithCache подключает best-effort кэш остатков (fallback при открытом breaker-е).
func WithCache(cache domain.StockLevelCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithPublisher подключает публикацию событий склада.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetry переопределяет параметры повторов.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithBreakerConfig переопределяет параметры circuit breaker.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(s *Service) { s.breakers = NewBreakerRegistry(cfg, s.logger) }
}

// NewService создаёт ledger поверх хранилища позиций и журнала резервов.
func NewService(stock domain.StockRepository, reservations domain.ReservationRepository, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "stock-ledger")
	}
	s := &Service{
		stock:        stock,
		reservations: reservations,
		retry:        DefaultRetryConfig(),
		logger:       logger,
	}
	s.breakers = NewBreakerRegistry(DefaultBreakerConfig(), logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateItemParams — параметры создания складской позиции.
type CreateItemParams struct {
	SKU               string
	ProductID         string
	InitialQty        int64
	LowStockThreshold int64
	RestockThreshold  int64
}

// CreateItem создаёт позицию. Повторное создание того же SKU — конфликт.
func (s *Service) CreateItem(params CreateItemParams) (domain.StockItem, error) {
	if params.SKU == "" {
		return domain.StockItem{}, domain.ErrSKURequired
	}
	if params.InitialQty < 0 {
		return domain.StockItem{}, domain.ErrQuantityNegative
	}
	if params.LowStockThreshold <= 0 {
		params.LowStockThreshold = defaultLowStockThreshold
	}
	if params.RestockThreshold <= 0 {
		params.RestockThreshold = defaultRestockThreshold
	}

	now := time.Now().UTC()
	item := domain.StockItem{
		SKU:               params.SKU,
		ProductID:         params.ProductID,
		Quantity:          params.InitialQty,
		Reserved:          0,
		LowStockThreshold: params.LowStockThreshold,
		RestockThreshold:  params.RestockThreshold,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.stock.Create(item); err != nil {
		return domain.StockItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"sku":      item.SKU,
		"quantity": item.Quantity,
	}).Info("stock item created")

	s.cachePut(item)
	s.emitEvent(kafka.InventoryEventCreated, item, nil)
	return item, nil
}

// GetItem возвращает позицию по SKU.
func (s *Service) GetItem(sku string) (domain.StockItem, error) {
	return s.stock.Get(sku)
}

// AdjustStock атомарно меняет общее количество позиции.
// Guard quantity + delta >= 0 проверяется тем же действием, что и запись.
func (s *Service) AdjustStock(sku string, delta int64, reason string) (domain.StockItem, error) {
	if sku == "" {
		return domain.StockItem{}, domain.ErrSKURequired
	}

	item, err := s.guarded("adjust", sku, func() (domain.StockItem, error) {
		return s.stock.AdjustQuantity(sku, delta)
	})
	if err != nil {
		return domain.StockItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"sku":    sku,
		"delta":  delta,
		"reason": reason,
	}).Info("stock adjusted")

	s.cachePut(item)
	s.emitEvent(kafka.InventoryEventAdjusted, item, func(ev *kafka.InventoryEvent) {
		ev.Reason = reason
	})
	return item, nil
}

// ReserveStock удерживает qty под резерв reservationID.
//
// Guard available >= qty выполняется атомарно с инкрементом reserved.
// Конфликт повторяется ограниченно: конкурентный release мог освободить
// остаток. После исчерпания попыток публикуется inventory-out-of-stock,
// чтобы сага отменила связанный заказ.
func (s *Service) ReserveStock(sku string, qty int64, reservationID string) (domain.StockItem, error) {
	if sku == "" {
		return domain.StockItem{}, domain.ErrSKURequired
	}
	if qty <= 0 {
		return domain.StockItem{}, domain.ErrItemQtyInvalid
	}
	if reservationID == "" {
		return domain.StockItem{}, domain.ErrReservationNotFound
	}

	var item domain.StockItem
	attemptErr := s.withConflictRetry(func() error {
		var err error
		item, err = s.guarded("reserve", sku, func() (domain.StockItem, error) {
			return s.stock.Reserve(sku, qty)
		})
		return err
	})
	if attemptErr != nil {
		if domain.IsConflict(attemptErr) {
			s.emitEvent(kafka.InventoryEventOutOfStock, domain.StockItem{SKU: sku}, func(ev *kafka.InventoryEvent) {
				ev.ReservationID = reservationID
				ev.OrderID = reservationID
				ev.Quantity = qty
			})
		}
		return domain.StockItem{}, attemptErr
	}

	now := time.Now().UTC()
	res := domain.Reservation{
		ID:        reservationID,
		SKU:       sku,
		Qty:       qty,
		Status:    domain.ReservationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reservations.Create(res); err != nil {
		// Дубликат reservationID: откатываем только что удержанный остаток.
		if _, relErr := s.stock.Release(sku, qty); relErr != nil {
			s.logger.WithError(relErr).WithField("sku", sku).Error("failed to roll back duplicate reservation")
		}
		return domain.StockItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"sku":            sku,
		"qty":            qty,
		"reservation_id": reservationID,
	}).Info("stock reserved")

	s.cachePut(item)
	s.emitEvent(kafka.InventoryEventReserved, item, func(ev *kafka.InventoryEvent) {
		ev.ReservationID = reservationID
		ev.OrderID = reservationID
	})
	return item, nil
}

// ReleaseStock снимает резерв. Количество сверяется с записью резерва:
// заявленному вызывающей стороной значению ledger не доверяет.
func (s *Service) ReleaseStock(sku string, qty int64, reservationID, reason string) (domain.StockItem, error) {
	res, err := s.reservations.Get(sku, reservationID)
	if err != nil {
		return domain.StockItem{}, err
	}
	if !res.IsOpen() {
		return domain.StockItem{}, domain.ErrReservationClosed
	}
	if qty != res.Qty {
		return domain.StockItem{}, domain.ErrReservationMismatch
	}

	// Сначала закрываем запись: повторный release того же резерва
	// структурно невозможен даже при гонке двух вызовов.
	if err := s.reservations.Close(sku, reservationID, domain.ReservationStatusReleased); err != nil {
		return domain.StockItem{}, err
	}

	item, err := s.guarded("release", sku, func() (domain.StockItem, error) {
		return s.stock.Release(sku, res.Qty)
	})
	if err != nil {
		// Остаток не списан: возвращаем резерв в active, иначе удержанное
		// количество зависнет навсегда — повтор упрётся в закрытую запись,
		// а cleanup-worker освобождает только активные резервы.
		s.reopenReservation(sku, reservationID)
		return domain.StockItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"sku":            sku,
		"qty":            res.Qty,
		"reservation_id": reservationID,
		"reason":         reason,
	}).Info("stock released")

	s.cachePut(item)
	s.emitEvent(kafka.InventoryEventReleased, item, func(ev *kafka.InventoryEvent) {
		ev.ReservationID = reservationID
		ev.OrderID = reservationID
		ev.Reason = reason
	})
	return item, nil
}

// ConsumeReservedStock превращает резерв в постоянное списание:
// quantity и reserved уменьшаются одним атомарным действием.
func (s *Service) ConsumeReservedStock(sku string, qty int64, reservationID string) (domain.StockItem, error) {
	res, err := s.reservations.Get(sku, reservationID)
	if err != nil {
		return domain.StockItem{}, err
	}
	if !res.IsOpen() {
		return domain.StockItem{}, domain.ErrReservationClosed
	}
	if qty != res.Qty {
		return domain.StockItem{}, domain.ErrReservationMismatch
	}

	if err := s.reservations.Close(sku, reservationID, domain.ReservationStatusConsumed); err != nil {
		return domain.StockItem{}, err
	}

	item, err := s.guarded("consume", sku, func() (domain.StockItem, error) {
		return s.stock.ConsumeReserved(sku, res.Qty)
	})
	if err != nil {
		s.reopenReservation(sku, reservationID)
		return domain.StockItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"sku":            sku,
		"qty":            res.Qty,
		"reservation_id": reservationID,
	}).Info("reserved stock consumed")

	s.cachePut(item)
	s.emitEvent(kafka.InventoryEventConsumed, item, func(ev *kafka.InventoryEvent) {
		ev.ReservationID = reservationID
		ev.OrderID = reservationID
	})
	return item, nil
}

// GetStatus возвращает трёхуровневый статус доступности по SKU.
// При недоступности хранилища отвечает последним закэшированным срезом.
func (s *Service) GetStatus(sku string) (domain.InventoryStatus, error) {
	item, err := s.stock.Get(sku)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.InventoryStatus{}, err
		}
		if cached, ok := s.cacheGet(sku); ok {
			return statusOf(cached), nil
		}
		return domain.InventoryStatus{}, err
	}
	s.cachePut(item)
	return statusOf(item), nil
}

// GetStockLevel возвращает restock-aware срез остатка.
func (s *Service) GetStockLevel(sku string) (domain.StockLevel, error) {
	item, err := s.stock.Get(sku)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return domain.StockLevel{
		SKU:               item.SKU,
		CurrentLevel:      item.Available(),
		LowStockThreshold: item.LowStockThreshold,
		RestockThreshold:  item.RestockThreshold,
		Status:            item.LevelStatus(),
	}, nil
}

// IsInStock сообщает, доступно ли qty единиц SKU.
func (s *Service) IsInStock(sku string, qty int64) (bool, error) {
	item, err := s.stock.Get(sku)
	if err != nil {
		return false, err
	}
	return item.IsActive && item.Available() >= qty, nil
}

// ListLowStock возвращает активные позиции с остатком не выше lowStockThreshold.
func (s *Service) ListLowStock() ([]domain.StockItem, error) {
	return s.stock.ListLowStock()
}

// ListNeedingRestock возвращает активные позиции, требующие пополнения.
func (s *Service) ListNeedingRestock() ([]domain.StockLevel, error) {
	items, err := s.stock.ListNeedingRestock()
	if err != nil {
		return nil, err
	}
	levels := make([]domain.StockLevel, 0, len(items))
	for _, item := range items {
		levels = append(levels, domain.StockLevel{
			SKU:               item.SKU,
			CurrentLevel:      item.Available(),
			LowStockThreshold: item.LowStockThreshold,
			RestockThreshold:  item.RestockThreshold,
			Status:            item.LevelStatus(),
		})
	}
	return levels, nil
}

// ProcessRestock пополняет позицию и проставляет отметки пополнения.
func (s *Service) ProcessRestock(sku string, qty int64) (domain.StockItem, error) {
	if qty <= 0 {
		return domain.StockItem{}, domain.ErrItemQtyInvalid
	}

	if _, err := s.guarded("restock", sku, func() (domain.StockItem, error) {
		return s.stock.AdjustQuantity(sku, qty)
	}); err != nil {
		return domain.StockItem{}, err
	}

	now := time.Now().UTC()
	item, err := s.stock.MarkRestocked(sku, now, now.Add(restockInterval))
	if err != nil {
		return domain.StockItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"sku": sku,
		"qty": qty,
	}).Info("stock replenished")

	s.cachePut(item)
	s.emitEvent(kafka.InventoryEventRestocked, item, func(ev *kafka.InventoryEvent) {
		ev.Reason = "restock"
	})
	return item, nil
}

// DeactivateItem выключает позицию. Физическое удаление не поддерживается.
func (s *Service) DeactivateItem(sku string) (domain.StockItem, error) {
	item, err := s.stock.SetActive(sku, false)
	if err != nil {
		return domain.StockItem{}, err
	}
	s.logger.WithField("sku", sku).Info("stock item deactivated")
	s.cachePut(item)
	return item, nil
}

// reopenReservation откатывает Close резерва, чья парная мутация остатка
// не была применена. Сам Close остаётся барьером от повторного release:
// откатить может только вызов, закрывший запись.
func (s *Service) reopenReservation(sku, reservationID string) {
	if err := s.reservations.Reopen(sku, reservationID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sku":            sku,
			"reservation_id": reservationID,
		}).Error("failed to reopen reservation after stock mutation failure")
	}
}

// withConflictRetry повторяет fn при конфликте защитного условия с backoff.
func (s *Service) withConflictRetry(fn func() error) error {
	attempts := s.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !domain.IsConflict(err) || attempt == attempts {
			return err
		}
		time.Sleep(s.retry.BaseDelay * time.Duration(attempt))
	}
	return err
}

// guarded выполняет операцию через circuit breaker SKU и снимает метрики.
func (s *Service) guarded(op, sku string, fn func() (domain.StockItem, error)) (domain.StockItem, error) {
	start := time.Now()
	b := s.breakers.forSKU(sku)

	if err := b.Allow(); err != nil {
		if s.metrics != nil {
			s.metrics.RecordBreakerRejection()
			s.metrics.RecordOperation(op, "rejected", time.Since(start))
		}
		return domain.StockItem{}, err
	}

	item, err := fn()
	// NotFound и конфликты не считаются отказом ресурса: это корректные
	// ответы хранилища, а не деградация.
	b.Record(err != nil && !domain.IsNotFound(err) && !domain.IsConflict(err))

	if s.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
			if domain.IsConflict(err) {
				result = "conflict"
			}
		}
		s.metrics.RecordOperation(op, result, time.Since(start))
	}

	return item, err
}

func (s *Service) cachePut(item domain.StockItem) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(item); err != nil {
		s.logger.WithError(err).WithField("sku", item.SKU).Warn("failed to update stock cache")
	}
}

func (s *Service) cacheGet(sku string) (domain.StockItem, bool) {
	if s.cache == nil {
		return domain.StockItem{}, false
	}
	item, ok, err := s.cache.Get(sku)
	if err != nil {
		s.logger.WithError(err).WithField("sku", sku).Warn("failed to read stock cache")
		return domain.StockItem{}, false
	}
	return item, ok
}

// emitEvent публикует событие склада best-effort: ошибка публикации логируется,
// зафиксированная мутация не откатывается.
func (s *Service) emitEvent(kind kafka.InventoryEventKind, item domain.StockItem, mut func(*kafka.InventoryEvent)) {
	if s.publisher == nil {
		return
	}

	ev := kafka.InventoryEvent{
		Kind:      kind,
		SKU:       item.SKU,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Reserved:  item.Reserved,
		Available: item.Available(),
		Timestamp: time.Now().UTC(),
	}
	if mut != nil {
		mut(&ev)
	}

	payload, err := kafka.EncodeInventoryEvent(ev)
	if err != nil {
		s.logger.WithError(err).WithField("sku", item.SKU).Error("failed to encode inventory event")
		return
	}
	if err := s.publisher.Publish(kafka.TopicInventoryEvents, item.SKU, payload); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sku":  item.SKU,
			"kind": ev.Kind.String(),
		}).Warn("failed to publish inventory event")
		if s.metrics != nil {
			s.metrics.RecordEventDropped()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordEventPublished()
	}
}

func statusOf(item domain.StockItem) domain.InventoryStatus {
	return domain.InventoryStatus{
		SKU:       item.SKU,
		InStock:   item.Available() > 0,
		Available: item.Available(),
		LowStock:  item.IsLowStock(),
		Status:    item.Status(),
	}
}

// NewReservationID возвращает идентификатор резерва для вызовов без своего ID.
func NewReservationID() string {
	return uuid.NewString()
}
