// Package gossip implements the peer sampling exchange protocol: the
// toSend/apply merge logic that runs push and pull rounds over a bounded
// View. It keeps the Config/Protocol shape this module started from, with
// its internals replaced end to end.
package gossip

import (
	"fmt"
	"time"

	"github.com/chrysalis/peer-sampling-service/pkg/descriptor"
	"github.com/chrysalis/peer-sampling-service/pkg/view"
)

// Tag identifies which of the two gossip message kinds a Message carries.
type Tag int

const (
	TagPush Tag = iota
	TagPull
)

func (t Tag) String() string {
	switch t {
	case TagPush:
		return "push"
	case TagPull:
		return "pull"
	default:
		return "unknown"
	}
}

// Config holds the peer sampling service's tunable parameters.
type Config struct {
	C           int           // target (and steady-state max) view size
	H           int           // healing: oldest-entries eviction count
	S           int           // swap: head-entries eviction count
	Delta       time.Duration // active round period
	PushEnabled bool
	PullEnabled bool
}

// DefaultConfig returns sensible defaults satisfying the construction
// constraints (c >= 2, 0 <= H+S <= c/2, Delta > 0).
func DefaultConfig() Config {
	return Config{
		C:           20,
		H:           4,
		S:           4,
		Delta:       time.Second,
		PushEnabled: true,
		PullEnabled: true,
	}
}

// Protocol implements the exchange protocol (component D) over a single
// View. It holds no reference to a transport or scheduler; pkg/service owns
// those and calls into Protocol's ToSend/Apply.
type Protocol struct {
	config  Config
	ownRank int
	view    *view.View
}

// New creates a protocol instance for ownRank, operating on v. Panics if
// config violates its construction constraints (c >= 2, 0 <= H+S <= c/2,
// Delta > 0), matching wire.NewCodec's panic on an invalid c.
func New(config Config, ownRank int, v *view.View) *Protocol {
	if config.C < 2 {
		panic(fmt.Sprintf("gossip: C must be >= 2, got %d", config.C))
	}
	if config.H < 0 || config.S < 0 || config.H+config.S > config.C/2 {
		panic(fmt.Sprintf("gossip: H+S must be in [0, C/2], got H=%d S=%d C=%d", config.H, config.S, config.C))
	}
	if config.Delta <= 0 {
		panic(fmt.Sprintf("gossip: Delta must be > 0, got %v", config.Delta))
	}
	return &Protocol{config: config, ownRank: ownRank, view: v}
}

// Config returns the protocol's configuration.
func (p *Protocol) Config() Config {
	return p.config
}

// View returns the underlying view (so pkg/service can print diagnostics,
// age it after an active round, and report its size as a metric).
func (p *Protocol) View() *view.View {
	return p.view
}

// ToSend builds the local round buffer: the own descriptor prepended, then
// the view shuffled, oldest-biased, and truncated to c/2 - 1 entries, so the
// combined length never exceeds c/2 + 1 — the wire codec's bufferSlots().
func (p *Protocol) ToSend() []descriptor.Descriptor {
	buffer := make([]descriptor.Descriptor, 0, p.config.C/2+1)
	buffer = append(buffer, descriptor.Descriptor{Rank: p.ownRank, Age: 0})

	p.view.Shuffle()
	p.view.MoveOldestToBack(p.config.H)
	buffer = append(buffer, p.view.Head(p.config.C/2-1)...)

	return buffer
}

// SelectPeer picks the peer to gossip with in an active round.
func (p *Protocol) SelectPeer() (int, error) {
	return p.view.RandomDescriptor()
}

// EvictionCounts records how many descriptors a single Apply call evicted,
// broken down by which of the three eviction steps removed them.
type EvictionCounts struct {
	Oldest int
	Head   int
	Random int
}

// Apply merges an incoming buffer into the view, restoring the bounded-size
// and uniqueness invariants, then ages the merged view by one round. This is
// the single entry point both the push-receive and pull-receive handlers
// call; the caller is responsible for doing so under whatever serialization
// it needs (pkg/service runs it directly since the view already owns its
// lock and no other state needs to move atomically with it). The returned
// EvictionCounts let a caller attribute merge-time evictions to a reason for
// metrics purposes; they have no effect on the merge itself.
func (p *Protocol) Apply(buffer []descriptor.Descriptor) EvictionCounts {
	p.view.Append(buffer)
	p.view.RemoveDuplicates()

	c := p.config.C
	var counts EvictionCounts

	oldest := min(p.config.H, p.view.Size()-c)
	p.view.RemoveOldest(oldest)
	if oldest > 0 {
		counts.Oldest = oldest
	}

	head := min(p.config.S, p.view.Size()-c)
	p.view.RemoveHead(head)
	if head > 0 {
		counts.Head = head
	}

	random := p.view.Size() - c
	p.view.RemoveAtRandom(random)
	if random > 0 {
		counts.Random = random
	}

	p.view.IncreaseAge()
	return counts
}
