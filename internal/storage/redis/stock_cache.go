package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

const (
	stockKeyPrefix = "stock:"

	defaultEntryTTL  = 5 * time.Minute
	defaultOpTimeout = 500 * time.Millisecond
)

// StockCache — read-through кэш уровней остатков поверх Redis.
// Источником истины остаётся основное хранилище: кэш отдаёт последний
// известный снимок, когда хранилище недоступно, и может отставать на TTL.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockCache создаёт кэш остатков.
func NewStockCache(client *redis.Client) *StockCache {
	return &StockCache{client: client, ttl: defaultEntryTTL}
}

// NewStockCacheWithTTL создаёт кэш с явным TTL записей.
func NewStockCacheWithTTL(client *redis.Client, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	return &StockCache{client: client, ttl: ttl}
}

type cachedStockItem struct {
	SKU               string     `json:"sku"`
	ProductID         string     `json:"productId,omitempty"`
	Quantity          int64      `json:"quantity"`
	Reserved          int64      `json:"reserved"`
	LowStockThreshold int64      `json:"lowStockThreshold"`
	RestockThreshold  int64      `json:"restockThreshold"`
	IsActive          bool       `json:"isActive"`
	LastRestockedAt   *time.Time `json:"lastRestockedAt,omitempty"`
	NextRestockAt     *time.Time `json:"nextRestockAt,omitempty"`
	Version           int64      `json:"version"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Put сохраняет снимок позиции с TTL.
func (c *StockCache) Put(item domain.StockItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	payload, err := json.Marshal(cachedStockItem{
		SKU:               item.SKU,
		ProductID:         item.ProductID,
		Quantity:          item.Quantity,
		Reserved:          item.Reserved,
		LowStockThreshold: item.LowStockThreshold,
		RestockThreshold:  item.RestockThreshold,
		IsActive:          item.IsActive,
		LastRestockedAt:   item.LastRestockedAt,
		NextRestockAt:     item.NextRestockAt,
		Version:           item.Version,
		UpdatedAt:         item.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode cached stock item: %w", err)
	}

	if err := c.client.Set(ctx, stockKeyPrefix+item.SKU, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache stock item: %w", err)
	}
	return nil
}

// Get возвращает снимок позиции, если он ещё в кэше.
func (c *StockCache) Get(sku string) (domain.StockItem, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	payload, err := c.client.Get(ctx, stockKeyPrefix+sku).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StockItem{}, false, nil
		}
		return domain.StockItem{}, false, fmt.Errorf("read cached stock item: %w", err)
	}

	var cached cachedStockItem
	if err := json.Unmarshal(payload, &cached); err != nil {
		return domain.StockItem{}, false, fmt.Errorf("decode cached stock item: %w", err)
	}

	return domain.StockItem{
		SKU:               cached.SKU,
		ProductID:         cached.ProductID,
		Quantity:          cached.Quantity,
		Reserved:          cached.Reserved,
		LowStockThreshold: cached.LowStockThreshold,
		RestockThreshold:  cached.RestockThreshold,
		IsActive:          cached.IsActive,
		LastRestockedAt:   cached.LastRestockedAt,
		NextRestockAt:     cached.NextRestockAt,
		Version:           cached.Version,
		UpdatedAt:         cached.UpdatedAt,
	}, true, nil
}

// Ping проверяет доступность Redis (для health-проверок).
func (c *StockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ domain.StockLevelCache = (*StockCache)(nil)
