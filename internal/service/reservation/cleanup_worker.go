package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/ledger"
)

const (
	defaultCleanupInterval  = 5 * time.Minute
	defaultReservationTTL   = 30 * time.Minute
	defaultCleanupBatchSize = 200
)

var (
	reservationCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecom_reservation_cleanup_runs_total",
		Help: "Total number of stale reservation cleanup runs grouped by result.",
	}, []string{"result"})
	reservationCleanupReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecom_reservation_cleanup_released_total",
		Help: "Total number of stale reservations released back to available stock.",
	})
	reservationCleanupLastReleased = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ecom_reservation_cleanup_last_released",
		Help: "Number of reservations released during the last cleanup run.",
	})
)

// CleanupOptions задает параметры воркера очистки протухших резервов.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	TTL       time.Duration
	BatchSize int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithTTL задает возраст, после которого активный резерв считается протухшим.
func WithTTL(ttl time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.TTL = ttl
	}
}

// WithBatchSize задает размер batch одного прохода.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// CleanupWorker периодически снимает резервы, владелец которых так и не
// выполнил release/consume: упавший процесс заказа, потерянное событие.
// Снятие идет через ledger, так что возврат остатка и закрытие записи
// резерва выполняются теми же защитными условиями, что и обычный release.
type CleanupWorker struct {
	reservations domain.ReservationRepository
	ledger       *ledger.Service
	logger       *log.Entry
	interval     time.Duration
	ttl          time.Duration
	batchSize    int
}

// NewCleanupWorker создает воркер очистки протухших резервов.
func NewCleanupWorker(reservations domain.ReservationRepository, svc *ledger.Service, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		TTL:       defaultReservationTTL,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reservation-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultReservationTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}

	return &CleanupWorker{
		reservations: reservations,
		ledger:       svc,
		logger:       logger,
		interval:     opts.Interval,
		ttl:          opts.TTL,
		batchSize:    opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.reservations == nil || w.ledger == nil {
		w.logger.Warn("reservation cleanup worker is disabled: dependencies are nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	released, err := w.ReleaseStale(ctx, time.Now().UTC().Add(-w.ttl))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		reservationCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("reservation cleanup run failed")
		return
	}

	reservationCleanupRunsTotal.WithLabelValues("ok").Inc()
	reservationCleanupLastReleased.Set(float64(released))
	if released > 0 {
		w.logger.WithField("released", released).Info("stale reservations released")
	}
}

// ReleaseStale снимает все активные резервы, созданные раньше cutoff,
// порциями batchSize. Возвращает количество успешно снятых резервов.
func (w *CleanupWorker) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	totalReleased := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalReleased, err
		}

		stale, err := w.reservations.ListStale(cutoff, w.batchSize)
		if err != nil {
			return totalReleased, err
		}
		if len(stale) == 0 {
			break
		}

		released := 0
		for _, res := range stale {
			if _, err := w.ledger.ReleaseStock(res.SKU, res.Qty, res.ID, "stale reservation timeout"); err != nil {
				// Конкурентный release/consume уже закрыл резерв: не ошибка.
				if errors.Is(err, domain.ErrReservationClosed) {
					continue
				}
				w.logger.WithError(err).WithFields(log.Fields{
					"sku":            res.SKU,
					"reservation_id": res.ID,
				}).Warn("failed to release stale reservation")
				continue
			}
			released++
		}

		totalReleased += released
		if released > 0 {
			reservationCleanupReleasedTotal.Add(float64(released))
		}

		// Резервы, которые не удалось снять, остаются в выборке ListStale.
		// Прерываем проход, чтобы не крутиться на одном и том же batch.
		if released == 0 || len(stale) < w.batchSize {
			break
		}
	}

	return totalReleased, nil
}
