// Package sendgov bounds and paces outbound gossip sends. It combines a
// weighted semaphore gating concurrent sends with a token bucket rate
// limiter and a per-peer circuit breaker, and keeps a small bounded ring of
// in-flight send handles so a
// caller can inspect what is still outstanding without the ring growing
// without bound.
package sendgov

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config controls how aggressively the governor paces and bounds sends.
type Config struct {
	// MaxConcurrent is the maximum number of sends in flight at once.
	MaxConcurrent int64
	// BurstCapacity is the token bucket capacity (tokens, i.e. sends).
	BurstCapacity int64
	// RatePerSecond is the steady-state sends-per-second the bucket refills at.
	RatePerSecond float64
	// RingSize bounds the number of completed handles retained for
	// inspection before they are reaped.
	RingSize int
	// Breaker configures the per-peer circuit breaker that fast-fails sends
	// to a peer with too many consecutive send failures.
	Breaker CircuitBreakerConfig
}

// DefaultConfig matches the gossip protocol's default fan-out: one active
// thread sending to at most a handful of peers per round.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
		BurstCapacity: 16,
		RatePerSecond: 32,
		RingSize:      64,
		Breaker:       DefaultCircuitBreakerConfig(),
	}
}

// Handle describes one governed send, tracked from dispatch to completion.
type Handle struct {
	Peer      int
	Tag       int
	Err       error
	dispatch  time.Time
	completed bool
}

// Governor bounds concurrent sends and paces their rate, reaping finished
// handles opportunistically whenever a new send is dispatched.
type Governor struct {
	sem           *semaphore.Weighted
	bucket        *TokenBucket
	breakerConfig CircuitBreakerConfig

	mu       sync.Mutex
	ring     []*Handle
	ringSize int
	breakers map[int]*circuitBreaker
}

// New creates a Governor from config.
func New(config Config) *Governor {
	return &Governor{
		sem:           semaphore.NewWeighted(config.MaxConcurrent),
		bucket:        NewTokenBucket(config.BurstCapacity, config.RatePerSecond),
		breakerConfig: config.Breaker,
		ringSize:      config.RingSize,
		breakers:      make(map[int]*circuitBreaker),
	}
}

func (g *Governor) breakerFor(peer int) *circuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[peer]
	if !ok {
		cb = newCircuitBreaker(g.breakerConfig)
		g.breakers[peer] = cb
	}
	return cb
}

// Go acquires a concurrency slot and a rate-limit token, then runs send in a
// new goroutine, blocking the caller only long enough to be admitted (not
// for send to complete). It returns the Handle tracking that dispatch, or an
// error if ctx is cancelled before admission or peer's circuit breaker is
// currently open.
func (g *Governor) Go(ctx context.Context, peer int, tag int, send func(context.Context) error) (*Handle, error) {
	breaker := g.breakerFor(peer)
	if !breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := g.bucket.Wait(ctx); err != nil {
		g.sem.Release(1)
		return nil, err
	}

	h := &Handle{Peer: peer, Tag: tag, dispatch: time.Now()}
	g.track(h)

	go func() {
		defer g.sem.Release(1)
		h.Err = send(ctx)
		if h.Err != nil {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
		g.mu.Lock()
		h.completed = true
		g.mu.Unlock()
	}()

	return h, nil
}

// track appends h to the ring, reaping completed handles first so the ring
// never grows past ringSize while work is still flowing through it.
func (g *Governor) track(h *Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.ring) >= g.ringSize {
		live := g.ring[:0]
		for _, existing := range g.ring {
			if !existing.completed {
				live = append(live, existing)
			}
		}
		g.ring = live
	}
	g.ring = append(g.ring, h)
}

// InFlight returns the number of handles the governor has not yet observed
// complete. It is a diagnostic snapshot, not a precise count under
// concurrent dispatch.
func (g *Governor) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, h := range g.ring {
		if !h.completed {
			n++
		}
	}
	return n
}
