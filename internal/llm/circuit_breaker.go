package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while a backend's breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig tunes one breaker. Zero values take the defaults of
// NewCircuitBreaker.
type CircuitBreakerConfig struct {
	// Name identifies the protected backend in logs and errors.
	Name string

	// MaxFailures is the run of consecutive failures that opens the circuit.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is how many probes must succeed to close it.
	HalfOpenMaxSuccesses uint32

	// IsSuccessful reports whether an error still counts as a success, for
	// errors that say nothing about backend health. Nil counts only nil as success.
	IsSuccessful func(err error) bool
}

// CircuitBreakerMetrics is a snapshot of a breaker's call counts.
type CircuitBreakerMetrics struct {
	TotalRequests        uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker guards calls to one model backend or remote server so a
// dead backend fails fast instead of stalling every request behind it.
type CircuitBreaker struct {
	name      string
	breaker   *gobreaker.CircuitBreaker
	requests  atomic.Uint64
	successes atomic.Uint64
}

// NewCircuitBreaker opens after 3 consecutive failures, probes again after
// 30 seconds and closes after 2 good probes.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(CircuitBreakerConfig{Name: name})
}

// NewCircuitBreakerWithConfig creates a breaker from cfg.
func NewCircuitBreakerWithConfig(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	maxFailures := cfg.MaxFailures
	return &CircuitBreaker{
		name: cfg.Name,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenMaxSuccesses,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: cfg.IsSuccessful,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("WARNING: circuit %s: %s -> %s", name, from, to)
			},
		}),
	}
}

// Execute runs fn unless ctx is already done or the circuit is open, in
// which case fn is skipped and ctx.Err() or ErrCircuitOpen is returned.
// A cancelled context does not count against the backend.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	cb.requests.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := cb.breaker.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrCircuitOpen
	case err != nil:
		return nil, err
	}
	cb.successes.Add(1)
	return result, nil
}

// run is Execute with a typed result. An open circuit is reported with the
// breaker's name so callers can tell which backend is down.
func run[T any](ctx context.Context, cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(ctx, func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, ErrCircuitOpen) {
		return zero, fmt.Errorf("%s circuit breaker open: %w", cb.name, err)
	}
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// State is "closed", "half-open" or "open".
func (cb *CircuitBreaker) State() string {
	return cb.breaker.State().String()
}

// Metrics returns the breaker's counts since creation.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	counts := cb.breaker.Counts()
	requests, successes := cb.requests.Load(), cb.successes.Load()
	return CircuitBreakerMetrics{
		TotalRequests:        requests,
		TotalSuccesses:       successes,
		TotalFailures:        requests - successes,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
