package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics содержит метрики операций склада.
type LedgerMetrics struct {
	// Счётчик операций по типу и результату
	operations *prometheus.CounterVec

	// Гистограмма времени выполнения операций
	opDuration *prometheus.HistogramVec

	// Счётчик опубликованных событий склада
	eventsPublished prometheus.Counter
	// Счётчик потерянных публикаций (best-effort, мутация уже зафиксирована)
	eventsDropped prometheus.Counter

	// Счётчик срабатываний circuit breaker
	breakerRejections prometheus.Counter
}

// NewLedgerMetrics создаёт новый экземпляр метрик склада.
func NewLedgerMetrics() *LedgerMetrics {
	return newLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_ledger_operations_total",
			Help: "Total number of stock ledger operations grouped by operation and result",
		}, []string{"operation", "result"}),
		opDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ecom_ledger_operation_duration_seconds",
			Help:    "Duration of stock ledger operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
		eventsPublished: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_ledger_events_published_total",
			Help: "Total number of inventory events published to the bus",
		}),
		eventsDropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_ledger_events_dropped_total",
			Help: "Total number of inventory events lost on publish failure",
		}),
		breakerRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_ledger_breaker_rejections_total",
			Help: "Total number of calls short-circuited by an open circuit breaker",
		}),
	}
}

// RecordOperation фиксирует завершённую операцию склада.
func (m *LedgerMetrics) RecordOperation(operation, result string, duration time.Duration) {
	m.operations.WithLabelValues(operation, result).Inc()
	m.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventPublished увеличивает счётчик опубликованных событий.
func (m *LedgerMetrics) RecordEventPublished() {
	m.eventsPublished.Inc()
}

// RecordEventDropped увеличивает счётчик потерянных событий.
func (m *LedgerMetrics) RecordEventDropped() {
	m.eventsDropped.Inc()
}

// RecordBreakerRejection увеличивает счётчик отклонённых breaker-ом вызовов.
func (m *LedgerMetrics) RecordBreakerRejection() {
	m.breakerRejections.Inc()
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
