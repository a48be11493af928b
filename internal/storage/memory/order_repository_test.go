package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

func seedOrder(t *testing.T, repo domain.OrderRepository, id, number string, status domain.OrderStatus, createdAt time.Time) domain.Order {
	t.Helper()
	order := domain.Order{
		ID:          id,
		OrderNumber: number,
		CustomerID:  "customer-1",
		Status:      status,
		Currency:    "USD",
		TotalMinor:  100,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := repo.Create(order); err != nil {
		t.Fatalf("seed order %s failed: %v", id, err)
	}
	return order
}

func TestOrderRepositoryCreateAndGet(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()
	seedOrder(t, repo, "o-1", "ORD-1", domain.OrderStatusPending, now)

	got, err := repo.Get("o-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.OrderNumber != "ORD-1" {
		t.Fatalf("unexpected order: %+v", got)
	}

	byNumber, err := repo.GetByNumber("ORD-1")
	if err != nil {
		t.Fatalf("get by number failed: %v", err)
	}
	if byNumber.ID != "o-1" {
		t.Fatalf("unexpected order: %+v", byNumber)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := repo.GetByNumber("ORD-MISSING"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepositorySaveOptimisticLock(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()
	seedOrder(t, repo, "o-1", "ORD-1", domain.OrderStatusPending, now)

	first, err := repo.Get("o-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second := first

	first.Status = domain.OrderStatusProcessing
	if err := repo.Save(first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	// Вторая запись со старой версией проигрывает.
	second.Status = domain.OrderStatusCancelled
	if err := repo.Save(second); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict, got %v", err)
	}

	got, err := repo.Get("o-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OrderStatusProcessing {
		t.Fatalf("stale save must not apply, got %s", got.Status)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1 after one save, got %d", got.Version)
	}
}

func TestOrderRepositoryListByCustomer(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		seedOrder(t, repo, orderID(i), orderNumberFor(i), domain.OrderStatusPending, base.Add(time.Duration(i)*time.Minute))
	}

	page, err := repo.ListByCustomer("customer-1", 0, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(page))
	}
	// Свежие первыми.
	if page[0].ID != orderID(4) || page[1].ID != orderID(3) {
		t.Fatalf("expected newest-first ordering, got %s %s", page[0].ID, page[1].ID)
	}

	last, err := repo.ListByCustomer("customer-1", 2, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(last) != 1 || last[0].ID != orderID(0) {
		t.Fatalf("unexpected last page: %+v", last)
	}

	none, err := repo.ListByCustomer("other", 0, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty page, got %d", len(none))
	}
}

func TestOrderRepositoryListByStatus(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Now().UTC()

	seedOrder(t, repo, "o-old", "ORD-OLD", domain.OrderStatusPending, base.Add(-2*time.Hour))
	seedOrder(t, repo, "o-older", "ORD-OLDER", domain.OrderStatusPending, base.Add(-3*time.Hour))
	seedOrder(t, repo, "o-fresh", "ORD-FRESH", domain.OrderStatusPending, base)
	seedOrder(t, repo, "o-paid", "ORD-PAID", domain.OrderStatusPaid, base.Add(-2*time.Hour))

	stalled, err := repo.ListByStatus(domain.OrderStatusPending, base.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(stalled) != 2 {
		t.Fatalf("expected 2 stalled orders, got %d", len(stalled))
	}
	// Старые первыми: восстановление обрабатывает их в порядке возраста.
	if stalled[0].ID != "o-older" || stalled[1].ID != "o-old" {
		t.Fatalf("expected oldest-first ordering, got %s %s", stalled[0].ID, stalled[1].ID)
	}

	limited, err := repo.ListByStatus(domain.OrderStatusPending, base.Add(-time.Hour), 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "o-older" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}
}

func orderID(i int) string {
	return "o-" + string(rune('a'+i))
}

func orderNumberFor(i int) string {
	return "ORD-" + string(rune('A'+i))
}
