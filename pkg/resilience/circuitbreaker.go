// Package resilience holds the fault-tolerance helpers the services share:
// a circuit breaker for the identity store, backoff retry for Kafka
// publishing and consumption, and deadlines for catalog searches.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker phase. The numeric values are exported as a gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when the breaker trips and recovers. Zero
// values take defaults.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// IsFailure decides whether an error counts against the breaker. The
	// default ignores context cancellation, which says nothing about the
	// backend.
	IsFailure func(error) bool
	// OnStateChange runs under the breaker lock after every transition.
	OnStateChange func(name string, to State)
}

// Counts is a snapshot of breaker bookkeeping.
type Counts struct {
	State               State
	ConsecutiveFailures int
	TotalFailures       uint64
	Rejected            uint64
}

// CircuitBreaker opens after FailureThreshold consecutive failures, rejects
// calls for ResetTimeout, then lets HalfOpenMaxRequests probes through.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	counts   Counts
	openedAt time.Time
	probes   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// Do is Execute for context-aware calls. A context that is already done is
// returned without touching the breaker.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return cb.Execute(func() error { return fn(ctx) })
}

// GetState reports the current phase, moving an expired open breaker to
// half-open first.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.counts.State
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.counts
}

// Reset closes the breaker and clears the failure streak.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.counts.ConsecutiveFailures = 0
	cb.probes = 0
	if cb.counts.State != StateClosed {
		cb.setState(StateClosed)
		cb.logger.Info("circuit manually reset")
	}
}

// refresh must be called with mu held.
func (cb *CircuitBreaker) refresh() {
	if cb.counts.State == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.probes = 0
		cb.setState(StateHalfOpen)
		cb.logger.Info("circuit half-open, probing", "after", cb.cfg.ResetTimeout)
	}
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	switch cb.counts.State {
	case StateOpen:
		cb.counts.Rejected++
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			cb.counts.Rejected++
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil || !cb.cfg.IsFailure(err) {
		cb.counts.ConsecutiveFailures = 0
		if cb.counts.State == StateHalfOpen {
			cb.probes = 0
			cb.setState(StateClosed)
			cb.logger.Info("circuit closed, backend recovered")
		}
		return
	}

	cb.counts.ConsecutiveFailures++
	cb.counts.TotalFailures++
	switch {
	case cb.counts.State == StateHalfOpen:
		cb.trip()
		cb.logger.Warn("probe failed, circuit re-opened", "error", err)
	case cb.counts.State == StateClosed && cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold:
		cb.trip()
		cb.logger.Warn("circuit opened",
			"consecutive_failures", cb.counts.ConsecutiveFailures,
			"threshold", cb.cfg.FailureThreshold,
			"error", err,
		)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to State) {
	cb.counts.State = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
