package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

func seedStock(t *testing.T, repo domain.StockRepository, sku string, qty int64) {
	t.Helper()
	now := time.Now().UTC()
	err := repo.Create(domain.StockItem{
		SKU:               sku,
		Quantity:          qty,
		LowStockThreshold: 10,
		RestockThreshold:  20,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("seed %s failed: %v", sku, err)
	}
}

func TestStockRepositoryCreateAndGet(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-1", 50)

	item, err := repo.Get("sku-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Quantity != 50 || item.Reserved != 0 {
		t.Fatalf("unexpected item: %+v", item)
	}

	if err := repo.Create(domain.StockItem{SKU: "sku-1"}); !errors.Is(err, domain.ErrSKUExists) {
		t.Fatalf("expected ErrSKUExists, got %v", err)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrStockItemNotFound) {
		t.Fatalf("expected ErrStockItemNotFound, got %v", err)
	}
}

func TestStockRepositoryAdjustGuard(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-1", 10)

	item, err := repo.AdjustQuantity("sku-1", -10)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if item.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", item.Quantity)
	}

	if _, err := repo.AdjustQuantity("sku-1", -1); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestStockRepositoryAdjustRespectsReserved(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-1", 10)

	if _, err := repo.Reserve("sku-1", 6); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// quantity не может упасть ниже reserved.
	if _, err := repo.AdjustQuantity("sku-1", -5); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := repo.AdjustQuantity("sku-1", -4); err != nil {
		t.Fatalf("adjust within reserved bound failed: %v", err)
	}
}

func TestStockRepositoryReserveGuard(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-1", 10)

	if _, err := repo.Reserve("sku-1", 7); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if _, err := repo.Reserve("sku-1", 4); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	item, err := repo.Get("sku-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Reserved != 7 {
		t.Fatalf("failed reserve must not change reserved, got %d", item.Reserved)
	}
}

func TestStockRepositoryConcurrentReserve(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-hot", 10)

	const workers = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Reserve("sku-hot", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reserves, got %d", succeeded)
	}
	item, err := repo.Get("sku-hot")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Reserved != 10 {
		t.Fatalf("expected reserved 10, got %d", item.Reserved)
	}
}

func TestStockRepositoryReleaseGuard(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-1", 10)

	if _, err := repo.Reserve("sku-1", 4); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if _, err := repo.Release("sku-1", 5); !errors.Is(err, domain.ErrInsufficientReserved) {
		t.Fatalf("expected ErrInsufficientReserved, got %v", err)
	}

	item, err := repo.Release("sku-1", 4)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if item.Reserved != 0 {
		t.Fatalf("expected reserved 0, got %d", item.Reserved)
	}
}

func TestStockRepositoryConsumeReserved(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-1", 10)

	if _, err := repo.Reserve("sku-1", 4); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	item, err := repo.ConsumeReserved("sku-1", 4)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if item.Quantity != 6 || item.Reserved != 0 {
		t.Fatalf("expected quantity=6 reserved=0, got %+v", item)
	}

	if _, err := repo.ConsumeReserved("sku-1", 1); !errors.Is(err, domain.ErrInsufficientReserved) {
		t.Fatalf("expected ErrInsufficientReserved, got %v", err)
	}
}

func TestStockRepositoryListFilters(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-plenty", 100)
	seedStock(t, repo, "sku-low", 8)
	seedStock(t, repo, "sku-mid", 15)
	seedStock(t, repo, "sku-off", 5)

	if _, err := repo.SetActive("sku-off", false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	low, err := repo.ListLowStock()
	if err != nil {
		t.Fatalf("list low failed: %v", err)
	}
	if len(low) != 1 || low[0].SKU != "sku-low" {
		t.Fatalf("expected only sku-low, got %+v", low)
	}

	restock, err := repo.ListNeedingRestock()
	if err != nil {
		t.Fatalf("list restock failed: %v", err)
	}
	if len(restock) != 2 {
		t.Fatalf("expected sku-low and sku-mid, got %+v", restock)
	}
}

func TestStockRepositoryMarkRestocked(t *testing.T) {
	repo := NewStockRepository()
	seedStock(t, repo, "sku-1", 10)

	restockedAt := time.Now().UTC()
	next := restockedAt.Add(14 * 24 * time.Hour)
	item, err := repo.MarkRestocked("sku-1", restockedAt, next)
	if err != nil {
		t.Fatalf("mark restocked failed: %v", err)
	}
	if item.LastRestockedAt == nil || !item.LastRestockedAt.Equal(restockedAt) {
		t.Fatalf("unexpected LastRestockedAt: %v", item.LastRestockedAt)
	}
	if item.NextRestockAt == nil || !item.NextRestockAt.Equal(next) {
		t.Fatalf("unexpected NextRestockAt: %v", item.NextRestockAt)
	}
}
