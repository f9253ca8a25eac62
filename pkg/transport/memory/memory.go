// Package memory provides an in-process, channel-based Transport connecting
// N simulated ranks within a single Go process. It is the transport the
// test suite and the `pssnode sim` command use: deterministic, no sockets,
// safe for concurrent use exactly like a networked transport would need to
// be, but without the flakiness of one.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/chrysalis/peer-sampling-service/pkg/transport"
)

// Cohort is a fixed-size group of simulated ranks, each reachable from every
// other by rank number.
type Cohort struct {
	endpoints []*Endpoint
}

// NewCohort creates a cohort of n endpoints, ranks 0..n-1.
func NewCohort(n int) *Cohort {
	if n <= 0 {
		panic("memory: cohort size must be positive")
	}
	cohort := &Cohort{endpoints: make([]*Endpoint, n)}
	for i := 0; i < n; i++ {
		cohort.endpoints[i] = &Endpoint{
			cohort: cohort,
			rank:   i,
			pushCh: make(chan transport.Envelope, n*4),
			pullCh: make(chan transport.Envelope, n*4),
		}
	}
	return cohort
}

// Endpoint returns the Transport for the given rank.
func (c *Cohort) Endpoint(rank int) *Endpoint {
	return c.endpoints[rank]
}

// Endpoint is one simulated rank's view of the cohort.
type Endpoint struct {
	cohort  *Cohort
	rank    int
	pushCh  chan transport.Envelope
	pullCh  chan transport.Envelope
	aborted int32
	code    int32
}

var _ transport.Transport = (*Endpoint)(nil)

// ProcessCount returns the size of the simulated cohort.
func (e *Endpoint) ProcessCount() int {
	return len(e.cohort.endpoints)
}

// OwnRank returns this endpoint's rank.
func (e *Endpoint) OwnRank() int {
	return e.rank
}

func (e *Endpoint) channelFor(tag transport.Tag) (chan transport.Envelope, error) {
	switch tag {
	case transport.TagPush:
		return e.pushCh, nil
	case transport.TagPull:
		return e.pullCh, nil
	default:
		return nil, fmt.Errorf("memory: unknown tag %v", tag)
	}
}

// SendAsync hands payload to peer's inbound channel for tag, in a goroutine
// so the call returns before delivery — matching the non-blocking send the
// spec requires.
func (e *Endpoint) SendAsync(ctx context.Context, peer int, tag transport.Tag, payload []byte) error {
	if peer < 0 || peer >= len(e.cohort.endpoints) {
		return fmt.Errorf("memory: peer rank %d out of range", peer)
	}
	target := e.cohort.endpoints[peer]
	ch, err := target.channelFor(tag)
	if err != nil {
		return err
	}

	env := transport.Envelope{Sender: e.rank, Tag: tag, Payload: append([]byte(nil), payload...)}
	go func() {
		select {
		case ch <- env:
		case <-ctx.Done():
		}
	}()
	return nil
}

// RecvBlocking blocks until a message tagged tag arrives from any source.
func (e *Endpoint) RecvBlocking(ctx context.Context, tag transport.Tag) (transport.Envelope, error) {
	ch, err := e.channelFor(tag)
	if err != nil {
		return transport.Envelope{}, err
	}
	select {
	case env := <-ch:
		return env, nil
	case <-ctx.Done():
		return transport.Envelope{}, ctx.Err()
	}
}

// Abort records the abort code. Unlike a real process's transport, the
// simulated cohort does not exit the process — callers check Aborted/Code.
func (e *Endpoint) Abort(code int) {
	atomic.StoreInt32(&e.code, int32(code))
	atomic.StoreInt32(&e.aborted, 1)
}

// Aborted reports whether Abort has been called on this endpoint.
func (e *Endpoint) Aborted() bool {
	return atomic.LoadInt32(&e.aborted) == 1
}

// Code returns the code passed to the most recent Abort call.
func (e *Endpoint) Code() int {
	return int(atomic.LoadInt32(&e.code))
}
