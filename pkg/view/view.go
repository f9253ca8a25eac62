// Package view implements the bounded, age-biased peer sample at the heart
// of the gossip engine. A View is safe for concurrent use: every operation
// acquires its internal lock for its full duration, and no operation blocks
// on anything but that lock.
package view

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/chrysalis/peer-sampling-service/pkg/descriptor"
)

// ErrEmpty is returned by RandomDescriptor when the view holds no entries.
var ErrEmpty = errors.New("view: empty")

// View is a bounded, ordered multiset of descriptors. The order is
// observable (Head, MoveOldestToBack) but carries no meaning beyond what the
// exchange protocol in pkg/gossip imposes on it.
type View struct {
	mu          sync.Mutex
	descriptors []descriptor.Descriptor
	rng         *rand.Rand
}

// New creates an empty view with a generator seeded from the current time.
// Per the design notes, the generator is owned by the View and reused across
// calls rather than recreated (and reseeded from the OS) on every shuffle.
func New() *View {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded creates an empty view with a deterministically seeded generator,
// for tests and reproducible simulations.
func NewSeeded(seed int64) *View {
	return &View{rng: rand.New(rand.NewSource(seed))}
}

// Init replaces the view's contents with one descriptor per seed rank, age
// zero, deduplicated by rank. Intended to be called exactly once, at
// bootstrap.
func (v *View) Init(seedRanks []int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	seen := make(map[int]bool, len(seedRanks))
	descriptors := make([]descriptor.Descriptor, 0, len(seedRanks))
	for _, rank := range seedRanks {
		if seen[rank] {
			continue
		}
		seen[rank] = true
		descriptors = append(descriptors, descriptor.Descriptor{Rank: rank, Age: 0})
	}
	v.descriptors = descriptors
}

// Size returns the current number of descriptors in the view.
func (v *View) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.descriptors)
}

// Snapshot returns a copy of the full view contents, for diagnostics.
func (v *View) Snapshot() []descriptor.Descriptor {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]descriptor.Descriptor, len(v.descriptors))
	copy(out, v.descriptors)
	return out
}

// IncreaseAge increments the age of every descriptor by one.
func (v *View) IncreaseAge() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.descriptors {
		v.descriptors[i] = v.descriptors[i].IncreaseAge()
	}
}

// Shuffle applies a uniformly random permutation (Fisher-Yates, via
// math/rand.Rand.Shuffle) to the view.
func (v *View) Shuffle() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rng.Shuffle(len(v.descriptors), func(i, j int) {
		v.descriptors[i], v.descriptors[j] = v.descriptors[j], v.descriptors[i]
	})
}

// Append concatenates buffer onto the end of the view. This may transiently
// break the bounded-size invariant; callers are expected to restore it (see
// pkg/gossip.Apply).
func (v *View) Append(buffer []descriptor.Descriptor) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.descriptors = append(v.descriptors, buffer...)
}

// Head returns a copy of the first min(n, Size()) descriptors.
func (v *View) Head(n int) []descriptor.Descriptor {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(v.descriptors) {
		n = len(v.descriptors)
	}
	out := make([]descriptor.Descriptor, n)
	copy(out, v.descriptors[:n])
	return out
}

// RandomDescriptor returns the rank of a uniformly chosen entry.
func (v *View) RandomDescriptor() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.descriptors) == 0 {
		return 0, ErrEmpty
	}
	return v.descriptors[v.rng.Intn(len(v.descriptors))].Rank, nil
}

// oldestIndices returns the indices of the h descriptors with the largest
// age, ties broken by position (earlier position wins, via a stable sort
// over the natural 0..n-1 ordering). Must be called with v.mu held.
func (v *View) oldestIndices(h int) []int {
	indices := make([]int, len(v.descriptors))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return v.descriptors[indices[i]].Age > v.descriptors[indices[j]].Age
	})
	return indices[:h]
}

// MoveOldestToBack relocates the h descriptors with the largest age to the
// last h positions, preserving the relative order of everything else. No-op
// if h <= 0 or h >= Size().
func (v *View) MoveOldestToBack(h int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.descriptors)
	if h <= 0 || h >= n {
		return
	}

	oldestSet := make(map[int]bool, h)
	for _, idx := range v.oldestIndices(h) {
		oldestSet[idx] = true
	}

	rest := make([]descriptor.Descriptor, 0, n-h)
	oldest := make([]descriptor.Descriptor, 0, h)
	for i, d := range v.descriptors {
		if oldestSet[i] {
			oldest = append(oldest, d)
		} else {
			rest = append(rest, d)
		}
	}
	v.descriptors = append(rest, oldest...)
}

// RemoveOldest deletes the k descriptors with the largest age. No-op if
// k <= 0 or k >= Size() (the view is never drained by this call).
func (v *View) RemoveOldest(k int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.descriptors)
	if k <= 0 || k >= n {
		return
	}

	remove := make(map[int]bool, k)
	for _, idx := range v.oldestIndices(k) {
		remove[idx] = true
	}

	kept := make([]descriptor.Descriptor, 0, n-k)
	for i, d := range v.descriptors {
		if !remove[i] {
			kept = append(kept, d)
		}
	}
	v.descriptors = kept
}

// RemoveHead deletes the first k entries. No-op if k <= 0 or k > Size().
func (v *View) RemoveHead(k int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.descriptors)
	if k <= 0 || k > n {
		return
	}
	kept := make([]descriptor.Descriptor, n-k)
	copy(kept, v.descriptors[k:])
	v.descriptors = kept
}

// RemoveAtRandom deletes k uniformly chosen entries, sampled without
// replacement. No-op if k <= 0 or k >= Size().
func (v *View) RemoveAtRandom(k int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.descriptors)
	if k <= 0 || k >= n {
		return
	}

	remove := make(map[int]bool, k)
	for _, idx := range v.rng.Perm(n)[:k] {
		remove[idx] = true
	}

	kept := make([]descriptor.Descriptor, 0, n-k)
	for i, d := range v.descriptors {
		if !remove[i] {
			kept = append(kept, d)
		}
	}
	v.descriptors = kept
}

// RemoveDuplicates keeps, for each rank, exactly the descriptor with the
// smallest age (the freshest), discarding the rest.
func (v *View) RemoveDuplicates() {
	v.mu.Lock()
	defer v.mu.Unlock()

	freshest := make(map[int]int, len(v.descriptors))
	for _, d := range v.descriptors {
		if age, ok := freshest[d.Rank]; !ok || d.Age < age {
			freshest[d.Rank] = d.Age
		}
	}

	kept := make([]descriptor.Descriptor, 0, len(freshest))
	emitted := make(map[int]bool, len(freshest))
	for _, d := range v.descriptors {
		if !emitted[d.Rank] && d.Age == freshest[d.Rank] {
			kept = append(kept, d)
			emitted[d.Rank] = true
		}
	}
	v.descriptors = kept
}
