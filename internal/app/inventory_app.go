package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/health"
	"github.com/vladislavdragonenkov/ecom-core/internal/httpapi"
	"github.com/vladislavdragonenkov/ecom-core/internal/ledger"
	"github.com/vladislavdragonenkov/ecom-core/internal/metrics"
	"github.com/vladislavdragonenkov/ecom-core/internal/service/reservation"
	"github.com/vladislavdragonenkov/ecom-core/internal/version"
)

// RunInventory запускает inventory-сервис: склад с REST-поверхностью,
// воркером очистки протухших резервов и публикацией событий в Kafka.
func RunInventory(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "inventory-app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	ledgerSvc := buildLedger(deps, logger)

	cleanup := reservation.NewCleanupWorker(
		deps.Reservations,
		ledgerSvc,
		reservation.WithInterval(cfg.CleanupInterval),
		reservation.WithTTL(cfg.ReservationTTL),
		reservation.WithLogger(logger.WithField("component", "reservation-cleanup-worker")),
	)
	go cleanup.Run(ctx)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Inventory: httpapi.NewInventoryHandler(ledgerSvc),
		Health:    buildHealthHandler(ctx, deps),
		Logger:    logger.WithField("layer", "http"),
	})

	return serveHTTP(ctx, cfg.HTTPAddr, router, logger)
}

// buildLedger собирает ledger-сервис с опциональной инфраструктурой.
func buildLedger(deps *Dependencies, logger *log.Entry) *ledger.Service {
	opts := []ledger.Option{
		ledger.WithMetrics(metrics.NewLedgerMetrics()),
	}
	if deps.Cache != nil {
		opts = append(opts, ledger.WithCache(deps.Cache))
	}
	if deps.Producer != nil {
		opts = append(opts, ledger.WithPublisher(deps.Producer))
	}
	return ledger.NewService(
		deps.Stock,
		deps.Reservations,
		logger.WithField("component", "stock-ledger"),
		opts...,
	)
}

// buildHealthHandler регистрирует проверки доступной инфраструктуры.
func buildHealthHandler(ctx context.Context, deps *Dependencies) *health.Handler {
	handler := health.NewHandler(version.GetVersion())

	if deps.Store != nil {
		handler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			return deps.Store.Ping(ctx)
		}))
	}
	if deps.Cache != nil {
		handler.RegisterChecker("redis", health.NewSimpleChecker("redis", func() error {
			return deps.Cache.Ping(ctx)
		}))
	}

	return handler
}
