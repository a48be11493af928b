package app

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/httpapi"
	"github.com/vladislavdragonenkov/ecom-core/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ecom-core/internal/metrics"
	"github.com/vladislavdragonenkov/ecom-core/internal/service/catalog"
	"github.com/vladislavdragonenkov/ecom-core/internal/service/coordinator"
	ordersvc "github.com/vladislavdragonenkov/ecom-core/internal/service/order"
	"github.com/vladislavdragonenkov/ecom-core/internal/service/payment"
)

// RunOrder запускает order-сервис: создание заказов, координатор саги
// по событиям payment/inventory и восстановление застрявших заказов.
//
// Если ECOM_CATALOG_URL задан, проверки доступности идут в отдельный
// inventory-сервис по HTTP. Иначе заказы работают с локальным складом,
// и сервис дополнительно поднимает inventory-срез REST API.
func RunOrder(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "order-app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	var (
		catalogClient    domain.CatalogClient
		inventoryHandler *httpapi.InventoryHandler
	)
	if cfg.CatalogBaseURL != "" {
		catalogClient = catalog.NewHTTPClient(
			cfg.CatalogBaseURL,
			catalog.WithHTTPLogger(logger.WithField("component", "catalog-client")),
		)
		logger.WithField("url", cfg.CatalogBaseURL).Info("using remote catalog service")
	} else {
		ledgerSvc := buildLedger(deps, logger)
		catalogClient = catalog.NewLedgerAdapter(ledgerSvc)
		inventoryHandler = httpapi.NewInventoryHandler(ledgerSvc)
		logger.Info("using in-process stock ledger as catalog")
	}

	var publisher domain.EventPublisher
	if deps.Producer != nil {
		publisher = deps.Producer
	}

	orderService := ordersvc.NewService(
		deps.Orders,
		deps.History,
		deps.Compensation,
		catalogClient,
		publisher,
		logger.WithField("component", "order-service"),
	)

	if err := startCoordinator(ctx, cfg, deps, publisher, logger); err != nil {
		return err
	}
	if err := startMockPayments(ctx, cfg, deps, publisher, logger); err != nil {
		return err
	}

	go runRecoveryLoop(ctx, cfg, orderService, logger)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Inventory: inventoryHandler,
		Orders:    httpapi.NewOrderHandler(orderService),
		Health:    buildHealthHandler(ctx, deps),
		Logger:    logger.WithField("layer", "http"),
	})

	return serveHTTP(ctx, cfg.HTTPAddr, router, logger)
}

// startCoordinator подписывает координатор саги на payment/inventory топики.
func startCoordinator(ctx context.Context, cfg Config, deps *Dependencies, publisher domain.EventPublisher, logger *log.Entry) error {
	if cfg.KafkaBrokers == "" {
		logger.Warn("ECOM_KAFKA_BROKERS is not set, order saga coordinator is disabled")
		return nil
	}

	saga := coordinator.NewCoordinator(
		deps.Orders,
		deps.History,
		publisher,
		metrics.NewSagaMetrics(),
		logger.WithField("component", "order-saga"),
	)

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	topics := []string{kafka.TopicPaymentEvents, kafka.TopicInventoryEvents}

	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		cfg.KafkaGroupID,
		topics,
		saga.HandleMessage,
		deps.Producer,
		cfg.DLQMaxRetries,
	)
	if err != nil {
		return err
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("saga consumer stopped with error")
		}
	}()
	go func() {
		<-ctx.Done()
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop saga consumer")
		}
	}()

	logger.WithField("topics", topics).Info("order saga coordinator started")
	return nil
}

// startMockPayments подписывает встроенный платёжный обработчик на события
// заказов: ORDER_CREATED списывается через mock-провайдера, исход уходит
// в платёжный топик и дальше обрабатывается сагой.
func startMockPayments(ctx context.Context, cfg Config, deps *Dependencies, publisher domain.EventPublisher, logger *log.Entry) error {
	if !cfg.MockPayments || cfg.KafkaBrokers == "" {
		return nil
	}

	processor := payment.NewProcessor(
		payment.NewMockGateway(),
		deps.Orders,
		publisher,
		logger.WithField("component", "payment-processor"),
	)

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		cfg.KafkaGroupID+"-payments",
		[]string{kafka.TopicOrderEvents},
		processor.HandleMessage,
		deps.Producer,
		cfg.DLQMaxRetries,
	)
	if err != nil {
		return err
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("payment consumer stopped with error")
		}
	}()
	go func() {
		<-ctx.Done()
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop payment consumer")
		}
	}()

	logger.Info("mock payment processor started")
	return nil
}

// runRecoveryLoop периодически доигрывает или откатывает застрявшие заказы.
func runRecoveryLoop(ctx context.Context, cfg Config, svc *ordersvc.Service, logger *log.Entry) {
	if cfg.RecoveryInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RecoverStalled(ctx, cfg.StalledOrderAge, cfg.RecoveryBatchLimit); err != nil {
				logger.WithError(err).Warn("stalled order recovery failed")
			}
		}
	}
}
