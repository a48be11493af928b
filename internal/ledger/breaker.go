package ledger

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// BreakerConfig задаёт параметры circuit breaker.
// Решение об открытии принимается по доле отказов в скользящем окне запросов,
// независимо от retry-бюджета вызывающей стороны.
type BreakerConfig struct {
	// RequestVolumeThreshold — минимальное число запросов в окне для принятия решения.
	RequestVolumeThreshold int
	// FailureRatio — доля отказов в окне, при которой breaker размыкается.
	FailureRatio float64
	// OpenDelay — время остывания до перехода в half-open.
	OpenDelay time.Duration
	// HalfOpenTrials — число пробных запросов в half-open перед полным замыканием.
	HalfOpenTrials int
}

// DefaultBreakerConfig повторяет параметры fault-tolerance исходной системы:
// порог 10 запросов, доля отказов 0.5, остывание 5 секунд.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		RequestVolumeThreshold: 10,
		FailureRatio:           0.5,
		OpenDelay:              5 * time.Second,
		HalfOpenTrials:         3,
	}
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker — circuit breaker одного SKU.
type breaker struct {
	mu sync.Mutex

	cfg    BreakerConfig
	logger *log.Entry

	// Скользящее окно результатов последних запросов (true = отказ).
	window []bool
	next   int
	filled int

	state      breakerState
	openedAt   time.Time
	trialsLeft int
	now        func() time.Time
}

func newBreaker(cfg BreakerConfig, logger *log.Entry) *breaker {
	if cfg.RequestVolumeThreshold <= 0 {
		cfg.RequestVolumeThreshold = DefaultBreakerConfig().RequestVolumeThreshold
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = DefaultBreakerConfig().FailureRatio
	}
	if cfg.OpenDelay <= 0 {
		cfg.OpenDelay = DefaultBreakerConfig().OpenDelay
	}
	if cfg.HalfOpenTrials <= 0 {
		cfg.HalfOpenTrials = DefaultBreakerConfig().HalfOpenTrials
	}
	return &breaker{
		cfg:    cfg,
		logger: logger,
		window: make([]bool, cfg.RequestVolumeThreshold),
		now:    time.Now,
	}
}

// Allow сообщает, можно ли выполнить запрос. В open возвращает ErrCircuitOpen,
// пока не истёк OpenDelay; затем пропускает ограниченное число проб.
func (b *breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenDelay {
			return domain.ErrCircuitOpen
		}
		b.state = breakerHalfOpen
		b.trialsLeft = b.cfg.HalfOpenTrials
		b.logger.Info("circuit breaker half-open")
		fallthrough
	case breakerHalfOpen:
		if b.trialsLeft <= 0 {
			return domain.ErrCircuitOpen
		}
		b.trialsLeft--
		return nil
	default:
		return nil
	}
}

// Record фиксирует результат выполненного запроса и пересчитывает состояние.
func (b *breaker) Record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		if failed {
			b.trip()
			return
		}
		if b.trialsLeft <= 0 {
			b.reset()
			b.logger.Info("circuit breaker closed")
		}
		return
	case breakerOpen:
		return
	}

	b.window[b.next] = failed
	b.next = (b.next + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}

	if b.filled < b.cfg.RequestVolumeThreshold {
		return
	}

	failures := 0
	for i := 0; i < b.filled; i++ {
		if b.window[i] {
			failures++
		}
	}
	if float64(failures)/float64(b.filled) >= b.cfg.FailureRatio {
		b.trip()
	}
}

func (b *breaker) trip() {
	b.state = breakerOpen
	b.openedAt = b.now()
	b.logger.Warn("circuit breaker opened")
}

func (b *breaker) reset() {
	b.state = breakerClosed
	b.next = 0
	b.filled = 0
	for i := range b.window {
		b.window[i] = false
	}
}

// BreakerRegistry держит независимый breaker на каждый SKU.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	logger   *log.Entry
	breakers map[string]*breaker
}

// NewBreakerRegistry создаёт реестр breaker-ов с общей конфигурацией.
func NewBreakerRegistry(cfg BreakerConfig, logger *log.Entry) *BreakerRegistry {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	return &BreakerRegistry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*breaker),
	}
}

func (r *BreakerRegistry) forSKU(sku string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[sku]
	if !ok {
		b = newBreaker(r.cfg, r.logger.WithField("sku", sku))
		r.breakers[sku] = b
	}
	return b
}
