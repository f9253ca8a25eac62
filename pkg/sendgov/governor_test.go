package sendgov

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errSend = errors.New("simulated send failure")

func TestGoRunsSendAndReleasesSlot(t *testing.T) {
	g := New(Config{MaxConcurrent: 2, BurstCapacity: 4, RatePerSecond: 100, RingSize: 8})

	var ran int32
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	h, err := g.Go(ctx, 1, 0, func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Go failed: %v", err)
	}
	if h.Peer != 1 {
		t.Errorf("expected handle peer 1, got %d", h.Peer)
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&ran) == 0 {
		select {
		case <-deadline:
			t.Fatal("send never ran")
		default:
		}
	}
}

func TestGoRespectsMaxConcurrent(t *testing.T) {
	g := New(Config{MaxConcurrent: 1, BurstCapacity: 8, RatePerSecond: 1000, RingSize: 8})

	block := make(chan struct{})
	ctx := context.Background()

	if _, err := g.Go(ctx, 1, 0, func(context.Context) error {
		<-block
		return nil
	}); err != nil {
		t.Fatalf("first Go failed: %v", err)
	}

	admitted := make(chan struct{})
	go func() {
		secondCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := g.Go(secondCtx, 2, 0, func(context.Context) error { return nil }); err == nil {
			close(admitted)
		}
	}()

	select {
	case <-admitted:
		t.Fatal("second send should not be admitted while the slot is held")
	case <-time.After(80 * time.Millisecond):
	}
	close(block)
}

func TestInFlightReflectsCompletion(t *testing.T) {
	g := New(DefaultConfig())
	ctx := context.Background()

	done := make(chan struct{})
	if _, err := g.Go(ctx, 1, 0, func(context.Context) error {
		<-done
		return nil
	}); err != nil {
		t.Fatalf("Go failed: %v", err)
	}

	if g.InFlight() != 1 {
		t.Errorf("expected 1 in flight, got %d", g.InFlight())
	}
	close(done)

	deadline := time.After(time.Second)
	for g.InFlight() != 0 {
		select {
		case <-deadline:
			t.Fatal("send never completed")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestGoOpensBreakerAfterRepeatedFailures(t *testing.T) {
	g := New(Config{
		MaxConcurrent: 4,
		BurstCapacity: 100,
		RatePerSecond: 1000,
		RingSize:      8,
		Breaker:       CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour},
	})
	ctx := context.Background()
	failingSend := func(context.Context) error { return errSend }

	for i := 0; i < 2; i++ {
		if _, err := g.Go(ctx, 9, 0, failingSend); err != nil {
			t.Fatalf("send %d should have been admitted, got error: %v", i, err)
		}
		waitForIdle(t, g)
	}

	if _, err := g.Go(ctx, 9, 0, failingSend); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen after repeated failures, got %v", err)
	}
}

func waitForIdle(t *testing.T, g *Governor) {
	t.Helper()
	deadline := time.After(time.Second)
	for g.InFlight() != 0 {
		select {
		case <-deadline:
			t.Fatal("send never completed")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestTokenBucketThrottles(t *testing.T) {
	tb := NewTokenBucket(1, 1000)
	if !tb.Allow() {
		t.Fatal("expected the first token to be available immediately")
	}
	if tb.Allow() {
		t.Fatal("expected the bucket to be empty immediately after spending its one token")
	}
}
