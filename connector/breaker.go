package connector

import (
	"sync"
	"time"

	"github.com/evalcore/evalcore/types"
	"go.uber.org/zap"
)

// BreakerState mirrors llm/circuitbreaker.State's three-state machine.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig configures the rolling-window trip condition: a window of
// calls is evaluated by count and age together, generalizing
// llm/circuitbreaker.Config's consecutive-failure Threshold into a
// windowed failure rate.
type BreakerConfig struct {
	Window           time.Duration
	MinCalls         int
	FailureRate      float64
	OpenDuration     time.Duration
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig returns the standard thresholds: a window of calls
// is tripped at >=20 calls with >=50% failures over the trailing 60s,
// opens for 30s, then allows exactly one probe call.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Window:           60 * time.Second,
		MinCalls:         20,
		FailureRate:      0.5,
		OpenDuration:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

type call struct {
	at      time.Time
	success bool
}

// Breaker is a per-provider rolling-window circuit breaker.
type Breaker struct {
	cfg    BreakerConfig
	logger *zap.Logger

	mu                sync.Mutex
	state             BreakerState
	calls             []call // ring of recent outcomes, pruned to cfg.Window
	openedAt          time.Time
	halfOpenCallCount int
}

// NewBreaker builds a Breaker in the closed state.
func NewBreaker(cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.MinCalls <= 0 {
		cfg = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{cfg: cfg, logger: logger, state: BreakerClosed}
}

// Allow reports whether a call may proceed, per beforeCall's discipline in
// llm/circuitbreaker.breaker: Closed always allows, Open allows only once
// cfg.OpenDuration has elapsed (transitioning to HalfOpen), and HalfOpen
// allows up to cfg.HalfOpenMaxCalls probe calls.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = BreakerHalfOpen
			b.halfOpenCallCount = 0
			b.logger.Info("circuit breaker entering half-open")
			b.halfOpenCallCount++
			return nil
		}
		return types.NewError(types.KindCircuitOpen, "circuit breaker open")
	case BreakerHalfOpen:
		if b.halfOpenCallCount >= b.cfg.HalfOpenMaxCalls {
			return types.NewError(types.KindCircuitOpen, "circuit breaker probe in flight")
		}
		b.halfOpenCallCount++
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of a call admitted by Allow.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	switch b.state {
	case BreakerHalfOpen:
		if success {
			b.logger.Info("circuit breaker closing after successful probe")
			b.state = BreakerClosed
			b.calls = nil
		} else {
			b.logger.Warn("circuit breaker probe failed, reopening")
			b.state = BreakerOpen
			b.openedAt = now
			b.calls = nil
		}
		return
	case BreakerOpen:
		// Stray result from a call in flight when the breaker tripped.
		return
	}

	b.calls = append(b.calls, call{at: now, success: success})
	b.calls = pruneBefore(b.calls, now.Add(-b.cfg.Window))

	if len(b.calls) < b.cfg.MinCalls {
		return
	}

	failures := 0
	for _, c := range b.calls {
		if !c.success {
			failures++
		}
	}
	rate := float64(failures) / float64(len(b.calls))
	if rate >= b.cfg.FailureRate {
		b.logger.Warn("circuit breaker opening",
			zap.Int("calls", len(b.calls)),
			zap.Int("failures", failures),
			zap.Float64("rate", rate),
		)
		b.state = BreakerOpen
		b.openedAt = now
		b.calls = nil
	}
}

func pruneBefore(calls []call, cutoff time.Time) []call {
	idx := 0
	for idx < len(calls) && calls[idx].at.Before(cutoff) {
		idx++
	}
	return calls[idx:]
}

// State reports the breaker's current state, for metrics export.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
