package ledger_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/ledger"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom-core/internal/storage/memory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []kafka.InventoryEvent
	err    error
}

func (p *capturingPublisher) Publish(topic string, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ev, err := kafka.DecodeInventoryEvent(payload)
	if err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) kinds() []kafka.InventoryEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]kafka.InventoryEventKind, 0, len(p.events))
	for _, ev := range p.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func newTestService(t *testing.T, opts ...ledger.Option) *ledger.Service {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	base := []ledger.Option{
		ledger.WithRetry(ledger.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}),
	}
	return ledger.NewService(
		memory.NewStockRepository(),
		memory.NewReservationRepository(),
		logger.WithField("component", "stock-ledger"),
		append(base, opts...)...,
	)
}

func mustCreate(t *testing.T, svc *ledger.Service, sku string, qty int64) domain.StockItem {
	t.Helper()
	item, err := svc.CreateItem(ledger.CreateItemParams{SKU: sku, InitialQty: qty})
	if err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	return item
}

func TestCreateItemDefaultsAndDuplicate(t *testing.T) {
	svc := newTestService(t)

	item := mustCreate(t, svc, "sku-1", 100)
	if item.LowStockThreshold != 10 || item.RestockThreshold != 20 {
		t.Fatalf("expected default thresholds 10/20, got %d/%d", item.LowStockThreshold, item.RestockThreshold)
	}
	if !item.IsActive {
		t.Fatal("new item should be active")
	}

	if _, err := svc.CreateItem(ledger.CreateItemParams{SKU: "sku-1", InitialQty: 5}); !errors.Is(err, domain.ErrSKUExists) {
		t.Fatalf("expected ErrSKUExists, got %v", err)
	}
}

func TestReserveStockHappyPath(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 100)

	item, err := svc.ReserveStock("sku-1", 30, "res-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if item.Reserved != 30 {
		t.Fatalf("expected reserved 30, got %d", item.Reserved)
	}
	if item.Available() != 70 {
		t.Fatalf("expected available 70, got %d", item.Available())
	}
	if item.Quantity != 100 {
		t.Fatalf("reserve must not change quantity, got %d", item.Quantity)
	}
}

func TestReserveStockInsufficient(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 10)

	if _, err := svc.ReserveStock("sku-1", 11, "res-1"); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Остаток не изменился после отказа.
	item, err := svc.GetItem("sku-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Reserved != 0 {
		t.Fatalf("failed reserve must not hold stock, reserved=%d", item.Reserved)
	}
}

func TestReserveStockNoOversellUnderConcurrency(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-hot", 10)

	const workers = 50

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.ReserveStock("sku-hot", 1, fmt.Sprintf("res-%d", n))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reservations, got %d", succeeded)
	}

	item, err := svc.GetItem("sku-hot")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Reserved != 10 || item.Available() != 0 {
		t.Fatalf("expected reserved=10 available=0, got reserved=%d available=%d", item.Reserved, item.Available())
	}
}

func TestReserveDuplicateReservationID(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 100)

	if _, err := svc.ReserveStock("sku-1", 10, "res-1"); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if _, err := svc.ReserveStock("sku-1", 10, "res-1"); !errors.Is(err, domain.ErrReservationClosed) {
		t.Fatalf("expected ErrReservationClosed for duplicate reservation, got %v", err)
	}

	// Дубликат не должен удержать остаток второй раз.
	item, err := svc.GetItem("sku-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Reserved != 10 {
		t.Fatalf("expected reserved 10 after duplicate rollback, got %d", item.Reserved)
	}
}

func TestReleaseStockVerifiesReservation(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 100)

	if _, err := svc.ReserveStock("sku-1", 25, "res-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Заявленное количество не совпадает с записью резерва.
	if _, err := svc.ReleaseStock("sku-1", 10, "res-1", "test"); !errors.Is(err, domain.ErrReservationMismatch) {
		t.Fatalf("expected ErrReservationMismatch, got %v", err)
	}

	item, err := svc.ReleaseStock("sku-1", 25, "res-1", "order cancelled")
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if item.Reserved != 0 || item.Available() != 100 {
		t.Fatalf("expected reserved=0 available=100, got reserved=%d available=%d", item.Reserved, item.Available())
	}
}

func TestReleaseStockTwiceIsConflict(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 100)

	if _, err := svc.ReserveStock("sku-1", 25, "res-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if _, err := svc.ReleaseStock("sku-1", 25, "res-1", ""); err != nil {
		t.Fatalf("first release failed: %v", err)
	}

	if _, err := svc.ReleaseStock("sku-1", 25, "res-1", ""); !errors.Is(err, domain.ErrReservationClosed) {
		t.Fatalf("expected ErrReservationClosed on double release, got %v", err)
	}

	item, err := svc.GetItem("sku-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Available() != 100 {
		t.Fatalf("double release must not inflate stock, available=%d", item.Available())
	}
}

// faultyStockRepository портит следующую мутацию указанной ошибкой.
type faultyStockRepository struct {
	domain.StockRepository
	mu         sync.Mutex
	releaseErr error
	consumeErr error
}

func (r *faultyStockRepository) Release(sku string, qty int64) (domain.StockItem, error) {
	r.mu.Lock()
	err := r.releaseErr
	r.releaseErr = nil
	r.mu.Unlock()
	if err != nil {
		return domain.StockItem{}, err
	}
	return r.StockRepository.Release(sku, qty)
}

func (r *faultyStockRepository) ConsumeReserved(sku string, qty int64) (domain.StockItem, error) {
	r.mu.Lock()
	err := r.consumeErr
	r.consumeErr = nil
	r.mu.Unlock()
	if err != nil {
		return domain.StockItem{}, err
	}
	return r.StockRepository.ConsumeReserved(sku, qty)
}

func newFaultyService(t *testing.T) (*ledger.Service, *faultyStockRepository) {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	stock := &faultyStockRepository{StockRepository: memory.NewStockRepository()}
	svc := ledger.NewService(
		stock,
		memory.NewReservationRepository(),
		logger.WithField("component", "stock-ledger"),
		ledger.WithRetry(ledger.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}),
	)
	return svc, stock
}

func TestReleaseFailureKeepsReservationRetryable(t *testing.T) {
	svc, stock := newFaultyService(t)
	if _, err := svc.CreateItem(ledger.CreateItemParams{SKU: "sku-1", InitialQty: 10}); err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	if _, err := svc.ReserveStock("sku-1", 7, "res-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	repoErr := errors.New("storage unavailable")
	stock.mu.Lock()
	stock.releaseErr = repoErr
	stock.mu.Unlock()

	if _, err := svc.ReleaseStock("sku-1", 7, "res-1", ""); !errors.Is(err, repoErr) {
		t.Fatalf("expected storage error, got %v", err)
	}

	// Сбой хранилища не должен похоронить удержанный остаток: резерв
	// остаётся активным и повторный release проходит.
	item, err := svc.ReleaseStock("sku-1", 7, "res-1", "")
	if err != nil {
		t.Fatalf("retry after transient failure must succeed, got %v", err)
	}
	if item.Reserved != 0 || item.Available() != 10 {
		t.Fatalf("expected reserved=0 available=10, got reserved=%d available=%d", item.Reserved, item.Available())
	}
}

func TestConsumeFailureKeepsReservationRetryable(t *testing.T) {
	svc, stock := newFaultyService(t)
	if _, err := svc.CreateItem(ledger.CreateItemParams{SKU: "sku-1", InitialQty: 10}); err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	if _, err := svc.ReserveStock("sku-1", 7, "res-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	repoErr := errors.New("storage unavailable")
	stock.mu.Lock()
	stock.consumeErr = repoErr
	stock.mu.Unlock()

	if _, err := svc.ConsumeReservedStock("sku-1", 7, "res-1"); !errors.Is(err, repoErr) {
		t.Fatalf("expected storage error, got %v", err)
	}

	item, err := svc.ConsumeReservedStock("sku-1", 7, "res-1")
	if err != nil {
		t.Fatalf("retry after transient failure must succeed, got %v", err)
	}
	if item.Quantity != 3 || item.Reserved != 0 {
		t.Fatalf("expected quantity=3 reserved=0, got quantity=%d reserved=%d", item.Quantity, item.Reserved)
	}
}

func TestConsumeReservedStock(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 100)

	if _, err := svc.ReserveStock("sku-1", 40, "res-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	item, err := svc.ConsumeReservedStock("sku-1", 40, "res-1")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if item.Quantity != 60 || item.Reserved != 0 {
		t.Fatalf("expected quantity=60 reserved=0, got quantity=%d reserved=%d", item.Quantity, item.Reserved)
	}
	// Available не меняется: удержанное количество стало списанием.
	if item.Available() != 60 {
		t.Fatalf("expected available 60, got %d", item.Available())
	}

	if _, err := svc.ConsumeReservedStock("sku-1", 40, "res-1"); !errors.Is(err, domain.ErrReservationClosed) {
		t.Fatalf("expected ErrReservationClosed on double consume, got %v", err)
	}
}

func TestReleaseUnknownReservation(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 100)

	if _, err := svc.ReleaseStock("sku-1", 5, "ghost", ""); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestAdjustStockGuard(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 10)

	if _, err := svc.AdjustStock("sku-1", -4, "damage"); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if _, err := svc.AdjustStock("sku-1", -7, "damage"); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	item, err := svc.GetItem("sku-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Quantity != 6 {
		t.Fatalf("expected quantity 6, got %d", item.Quantity)
	}
}

func TestAdjustStockCannotDropBelowReserved(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 10)

	if _, err := svc.ReserveStock("sku-1", 8, "res-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Списание 5 оставило бы quantity=5 < reserved=8.
	if _, err := svc.AdjustStock("sku-1", -5, "shrinkage"); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestProcessRestock(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 5)

	item, err := svc.ProcessRestock("sku-1", 50)
	if err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if item.Quantity != 55 {
		t.Fatalf("expected quantity 55, got %d", item.Quantity)
	}
	if item.LastRestockedAt == nil || item.NextRestockAt == nil {
		t.Fatal("restock marks should be set")
	}
	if !item.NextRestockAt.After(*item.LastRestockedAt) {
		t.Fatal("next restock should be scheduled after the last one")
	}
}

func TestGetStatusAndStockLevel(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 15)

	status, err := svc.GetStatus("sku-1")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if !status.InStock || status.Available != 15 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Status != domain.StockStatusInStock {
		t.Fatalf("expected IN_STOCK, got %s", status.Status)
	}

	level, err := svc.GetStockLevel("sku-1")
	if err != nil {
		t.Fatalf("get stock level failed: %v", err)
	}
	if level.Status != domain.StockStatusNeedsRestock {
		t.Fatalf("expected NEEDS_RESTOCK at level 15, got %s", level.Status)
	}

	if _, err := svc.GetStatus("missing"); !errors.Is(err, domain.ErrStockItemNotFound) {
		t.Fatalf("expected ErrStockItemNotFound, got %v", err)
	}
}

func TestDeactivateItem(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "sku-1", 50)

	item, err := svc.DeactivateItem("sku-1")
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if item.IsActive {
		t.Fatal("item should be inactive")
	}

	ok, err := svc.IsInStock("sku-1", 1)
	if err != nil {
		t.Fatalf("is in stock failed: %v", err)
	}
	if ok {
		t.Fatal("inactive item must not report in stock")
	}
}

func TestReserveEmitsEvents(t *testing.T) {
	pub := &capturingPublisher{}
	svc := newTestService(t, ledger.WithPublisher(pub))
	mustCreate(t, svc, "sku-1", 10)

	if _, err := svc.ReserveStock("sku-1", 4, "order-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	kinds := pub.kinds()
	if len(kinds) != 2 {
		t.Fatalf("expected created + reserved events, got %d", len(kinds))
	}
	if kinds[1] != kafka.InventoryEventReserved {
		t.Fatalf("expected reserved event, got %v", kinds[1])
	}

	last := pub.events[len(pub.events)-1]
	if last.OrderID != "order-1" || last.ReservationID != "order-1" {
		t.Fatalf("reserved event should carry the reservation id, got %+v", last)
	}
	if last.Available != 6 {
		t.Fatalf("expected available 6 in event, got %d", last.Available)
	}
}

func TestExhaustedReserveEmitsOutOfStock(t *testing.T) {
	pub := &capturingPublisher{}
	svc := newTestService(t, ledger.WithPublisher(pub))
	mustCreate(t, svc, "sku-1", 3)

	if _, err := svc.ReserveStock("sku-1", 5, "order-9"); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	kinds := pub.kinds()
	last := kinds[len(kinds)-1]
	if last != kafka.InventoryEventOutOfStock {
		t.Fatalf("expected out-of-stock event, got %v", last)
	}

	ev := pub.events[len(pub.events)-1]
	if ev.OrderID != "order-9" {
		t.Fatalf("out-of-stock event should carry the order id, got %q", ev.OrderID)
	}
}

func TestPublisherFailureDoesNotFailMutation(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("broker down")}
	svc := newTestService(t, ledger.WithPublisher(pub))
	mustCreate(t, svc, "sku-1", 10)

	item, err := svc.ReserveStock("sku-1", 2, "res-1")
	if err != nil {
		t.Fatalf("reserve should succeed despite publish failure: %v", err)
	}
	if item.Reserved != 2 {
		t.Fatalf("expected reserved 2, got %d", item.Reserved)
	}
}
