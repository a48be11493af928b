package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom-core/internal/storage/memory"
	"github.com/vladislavdragonenkov/ecom-core/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/ecom-core/internal/storage/redis"
)

// Dependencies содержит инфраструктурные зависимости сервисов.
// Postgres, Redis и Kafka опциональны: без DSN данные живут в памяти,
// без брокеров события не публикуются.
type Dependencies struct {
	Stock        domain.StockRepository
	Reservations domain.ReservationRepository
	Orders       domain.OrderRepository
	History      domain.StatusHistoryRepository
	Compensation domain.CompensationLogRepository

	Cache *redisstore.StockCache
	Store *postgres.Store

	Producer *kafka.Producer

	Logger *log.Entry
}

// NewDependencies создаёт и инициализирует зависимости по конфигурации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		deps.Store = store
		deps.Stock = postgres.NewStockRepository(store)
		deps.Reservations = postgres.NewReservationRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.History = postgres.NewStatusHistoryRepository(store)
		deps.Compensation = postgres.NewCompensationLogRepository(store)
		logger.Info("using postgres storage")
	} else {
		deps.Stock = memory.NewStockRepository()
		deps.Reservations = memory.NewReservationRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.History = memory.NewStatusHistoryRepository()
		deps.Compensation = memory.NewCompensationLogRepository()
		logger.Warn("ECOM_POSTGRES_DSN is not set, using in-memory storage")
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis is unreachable, continuing without stock cache")
			_ = client.Close()
		} else {
			deps.Cache = redisstore.NewStockCache(client)
			logger.WithField("addr", cfg.RedisAddr).Info("redis stock cache initialized")
		}
	}

	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		producer, err := kafka.NewProducer(brokers)
		if err != nil {
			logger.WithError(err).Warn("kafka is unreachable, continuing without event publishing")
		} else {
			deps.Producer = producer
			logger.WithField("brokers", brokers).Info("kafka producer initialized")
		}
	}

	return deps, nil
}

// Close освобождает подключения к внешним системам.
func (d *Dependencies) Close() {
	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close kafka producer")
		}
	}

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
