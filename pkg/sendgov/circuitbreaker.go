package sendgov

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned when a peer's circuit breaker is open and
// rejecting sends.
var ErrCircuitOpen = errors.New("sendgov: circuit open for peer")

// CircuitState is the state of one peer's circuit breaker.
type CircuitState int32

const (
	CircuitClosed   CircuitState = iota // normal operation
	CircuitOpen                         // failing, reject sends
	CircuitHalfOpen                     // probing whether the peer recovered
)

// CircuitBreakerConfig configures a circuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int64
	SuccessThreshold int64
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive send failures to a
// peer and probes again after 10 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
	}
}

// circuitBreaker trips per peer so a single unreachable peer cannot consume
// the governor's bounded concurrency with sends that are doomed to fail.
type circuitBreaker struct {
	config      CircuitBreakerConfig
	state       int32
	failures    int64
	successes   int64
	lastFailure int64
	mu          sync.Mutex
}

func newCircuitBreaker(config CircuitBreakerConfig) *circuitBreaker {
	return &circuitBreaker{config: config, state: int32(CircuitClosed)}
}

func (cb *circuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt32(&cb.state))
}

func (cb *circuitBreaker) transition(to CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if CircuitState(cb.state) == to {
		return
	}
	atomic.StoreInt32(&cb.state, int32(to))
	atomic.StoreInt64(&cb.failures, 0)
	atomic.StoreInt64(&cb.successes, 0)
}

// Allow reports whether a send should be attempted, flipping an open
// breaker to half-open once its timeout has elapsed.
func (cb *circuitBreaker) Allow() bool {
	switch cb.State() {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		lastFail := atomic.LoadInt64(&cb.lastFailure)
		if time.Now().UnixNano()-lastFail > int64(cb.config.Timeout) {
			cb.transition(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *circuitBreaker) RecordSuccess() {
	switch cb.State() {
	case CircuitClosed:
		atomic.StoreInt64(&cb.failures, 0)
	case CircuitHalfOpen:
		if atomic.AddInt64(&cb.successes, 1) >= cb.config.SuccessThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

func (cb *circuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())
	switch cb.State() {
	case CircuitClosed:
		if atomic.AddInt64(&cb.failures, 1) >= cb.config.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}
