package resilience

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// breaker is open. Callers should back off on their own schedule rather
// than retry immediately.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the circuit breaker state machine position
type BreakerState int32

const (
	// StateClosed lets calls through and counts consecutive failures
	StateClosed BreakerState = iota
	// StateOpen fails fast until the open timeout elapses
	StateOpen
	// StateHalfOpen lets a single probe decide between closed and open
	StateHalfOpen
)

// String returns the lowercase state name
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds per-dependency breaker settings. Threshold and
// timeout derive from the dependency's failure budget and are operator
// configured, never hard-coded.
type BreakerConfig struct {
	// Name identifies the protected dependency in logs and health output
	Name string
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker open
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before allowing a
	// half-open probe
	OpenTimeout time.Duration
}

// Breaker protects one external dependency. One instance per dependency,
// never shared, so a fault in one dependency cannot mask or amplify faults
// in another. State transitions use compare-and-swap so concurrent callers
// observing and tripping the breaker cannot lose updates. State is
// process-wide and never persisted; a restart implies closed.
type Breaker struct {
	config BreakerConfig
	clock  Clock
	logger *zap.Logger

	state         atomic.Int32
	failureCount  atomic.Int32
	openedAt      atomic.Int64 // unix nanos, valid only while open
	lastFailureAt atomic.Int64 // unix nanos
}

// NewBreaker creates a closed breaker for one dependency
func NewBreaker(config BreakerConfig, clock Clock, logger *zap.Logger) *Breaker {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		config: config,
		clock:  clock,
		logger: logger,
	}
	b.state.Store(int32(StateClosed))
	return b
}

// State returns the current state, advancing open to half-open when the
// timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.tryHalfOpen()
	return BreakerState(b.state.Load())
}

// Name returns the protected dependency name
func (b *Breaker) Name() string {
	return b.config.Name
}

// FailureCount returns the current consecutive-failure count
func (b *Breaker) FailureCount() int {
	return int(b.failureCount.Load())
}

// LastFailureAt returns the instant of the most recent failure, zero if none
func (b *Breaker) LastFailureAt() time.Time {
	nanos := b.lastFailureAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Do executes fn through the breaker. In open state it fails fast with
// ErrCircuitOpen without invoking fn; a success forces closed and resets
// the failure count; a failure increments the count and trips the breaker
// at the threshold. Half-open admits the call as a probe.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}

	result, err := fn()
	if err != nil {
		b.onFailure()
		return zero, err
	}
	b.onSuccess()
	return result, nil
}

// allow decides whether a call may proceed
func (b *Breaker) allow() error {
	b.tryHalfOpen()
	if BreakerState(b.state.Load()) == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// tryHalfOpen transitions open -> half_open once the open timeout elapsed
func (b *Breaker) tryHalfOpen() {
	if BreakerState(b.state.Load()) != StateOpen {
		return
	}
	openedAt := b.openedAt.Load()
	if b.clock.Now().Sub(time.Unix(0, openedAt)) <= b.config.OpenTimeout {
		return
	}
	if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
		b.logger.Info("circuit breaker half-open",
			zap.String("dependency", b.config.Name))
	}
}

func (b *Breaker) onSuccess() {
	b.failureCount.Store(0)
	prev := BreakerState(b.state.Swap(int32(StateClosed)))
	if prev != StateClosed {
		b.logger.Info("circuit breaker closed",
			zap.String("dependency", b.config.Name),
			zap.String("previous_state", prev.String()))
	}
}

func (b *Breaker) onFailure() {
	now := b.clock.Now().UnixNano()
	b.lastFailureAt.Store(now)
	failures := b.failureCount.Add(1)

	// a failed half-open probe reopens immediately and resets the window
	if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
		b.openedAt.Store(now)
		b.logger.Warn("circuit breaker reopened after failed probe",
			zap.String("dependency", b.config.Name))
		return
	}

	if int(failures) >= b.config.FailureThreshold {
		if b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
			b.openedAt.Store(now)
			b.logger.Warn("circuit breaker opened",
				zap.String("dependency", b.config.Name),
				zap.Int32("failure_count", failures),
				zap.Duration("open_timeout", b.config.OpenTimeout))
		}
	}
}
