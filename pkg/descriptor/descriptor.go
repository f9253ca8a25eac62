// Package descriptor defines the peer identity/age pair exchanged by the
// gossip protocol and the sentinel value used to pad fixed-size wire buffers.
package descriptor

// Descriptor pairs a peer's rank with the number of gossip rounds since the
// descriptor was last produced fresh (age 0).
type Descriptor struct {
	Rank int
	Age  int
}

// Null is the sentinel written into unused wire-buffer slots. It never
// appears inside a View.
var Null = Descriptor{Rank: -1, Age: -1}

// IsNull reports whether d equals the null sentinel, comparing both fields
// (the original source compared with an assignment instead of `==` on Rank
// alone, which this implementation deliberately does not repeat).
func (d Descriptor) IsNull() bool {
	return d == Null
}

// IncreaseAge returns a copy of d with its age incremented by one.
func (d Descriptor) IncreaseAge() Descriptor {
	d.Age++
	return d
}

// SameRank reports whether d and other identify the same peer, ignoring age.
func (d Descriptor) SameRank(other Descriptor) bool {
	return d.Rank == other.Rank
}
