package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config описывает настройки запуска сервисов.
// Все поля переопределяются переменными окружения с префиксом ECOM_.
type Config struct {
	HTTPAddr string

	// PostgresDSN пустой — данные живут в памяти (локальная разработка, тесты).
	PostgresDSN string
	// RedisAddr пустой — сервис работает без кэша остатков.
	RedisAddr string
	// KafkaBrokers пустой — события не публикуются и не потребляются.
	KafkaBrokers  string
	KafkaGroupID  string
	DLQMaxRetries int

	// CatalogBaseURL пустой — заказы работают с локальным складом in-process.
	CatalogBaseURL string

	// MockPayments включает встроенный платёжный обработчик: созданные
	// заказы списываются через mock-провайдера, исход публикуется в
	// платёжный топик. Для окружений без внешнего платёжного сервиса.
	MockPayments bool

	ReservationTTL     time.Duration
	CleanupInterval    time.Duration
	StalledOrderAge    time.Duration
	RecoveryInterval   time.Duration
	RecoveryBatchLimit int
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		KafkaGroupID:       "ecom-order-coordinator",
		DLQMaxRetries:      3,
		ReservationTTL:     30 * time.Minute,
		CleanupInterval:    5 * time.Minute,
		StalledOrderAge:    15 * time.Minute,
		RecoveryInterval:   10 * time.Minute,
		RecoveryBatchLimit: 100,
	}
}

// ReadConfig собирает конфигурацию из окружения поверх значений по умолчанию.
func ReadConfig() Config {
	cfg := DefaultConfig()

	setString(&cfg.HTTPAddr, "ECOM_HTTP_ADDR")
	setString(&cfg.PostgresDSN, "ECOM_POSTGRES_DSN")
	setString(&cfg.RedisAddr, "ECOM_REDIS_ADDR")
	setString(&cfg.KafkaBrokers, "ECOM_KAFKA_BROKERS")
	setString(&cfg.KafkaGroupID, "ECOM_KAFKA_GROUP_ID")
	setString(&cfg.CatalogBaseURL, "ECOM_CATALOG_URL")
	setBool(&cfg.MockPayments, "ECOM_MOCK_PAYMENTS")
	setInt(&cfg.DLQMaxRetries, "ECOM_DLQ_MAX_RETRIES")
	setInt(&cfg.RecoveryBatchLimit, "ECOM_RECOVERY_BATCH_LIMIT")
	setDuration(&cfg.ReservationTTL, "ECOM_RESERVATION_TTL")
	setDuration(&cfg.CleanupInterval, "ECOM_CLEANUP_INTERVAL")
	setDuration(&cfg.StalledOrderAge, "ECOM_STALLED_ORDER_AGE")
	setDuration(&cfg.RecoveryInterval, "ECOM_RECOVERY_INTERVAL")

	return cfg
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
