package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики координатора саги заказов.
type SagaMetrics struct {
	// Счётчик применённых переходов по целевому статусу
	transitions *prometheus.CounterVec
	// Счётчик событий, отброшенных как дубликаты или stale
	eventsDiscarded *prometheus.CounterVec
	// Счётчик событий с незнакомым eventType
	unknownEvents prometheus.Counter
	// Счётчик ошибок обработки сообщений consumer-а
	consumeErrors prometheus.Counter
}

// NewSagaMetrics создаёт новый экземпляр метрик саги.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_saga_transitions_total",
			Help: "Total number of applied order status transitions grouped by target status",
		}, []string{"status"}),
		eventsDiscarded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_saga_events_discarded_total",
			Help: "Total number of events discarded as duplicate or stale, grouped by reason",
		}, []string{"reason"}),
		unknownEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_saga_unknown_events_total",
			Help: "Total number of events with unrecognized eventType",
		}),
		consumeErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_saga_consume_errors_total",
			Help: "Total number of event messages dropped due to processing errors",
		}),
	}
}

// RecordTransition увеличивает счётчик применённых переходов.
func (m *SagaMetrics) RecordTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// RecordDiscarded увеличивает счётчик отброшенных событий.
func (m *SagaMetrics) RecordDiscarded(reason string) {
	m.eventsDiscarded.WithLabelValues(reason).Inc()
}

// RecordUnknownEvent увеличивает счётчик незнакомых событий.
func (m *SagaMetrics) RecordUnknownEvent() {
	m.unknownEvents.Inc()
}

// RecordConsumeError увеличивает счётчик ошибок обработки.
func (m *SagaMetrics) RecordConsumeError() {
	m.consumeErrors.Inc()
}
