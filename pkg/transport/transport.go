// Package transport defines the point-to-point messaging interface the
// gossip engine runs over, standing in for the spec's MPI-shaped
// collaborator: a process identity, blocking tagged receives, and
// non-blocking sends, safe for concurrent use from multiple goroutines.
package transport

import "context"

// Tag identifies which reactive path a message belongs to.
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

// Envelope is a received message together with its tag and the sender's
// rank, as observed by the transport (not necessarily the sender rank
// encoded in the payload, though the two always agree for a correct peer).
type Envelope struct {
	Sender  int
	Tag     Tag
	Payload []byte
}

// Transport is the addressable, point-to-point substrate the peer sampling
// service runs over. Implementations must be safe for concurrent use by the
// active, push-receive, and pull-receive goroutines of pkg/service.
type Transport interface {
	// ProcessCount returns the size of the cohort.
	ProcessCount() int
	// OwnRank returns this process's rank within the cohort.
	OwnRank() int
	// SendAsync sends payload to peer under tag. It returns once the send
	// has been accepted for delivery, not once the peer has observed it.
	SendAsync(ctx context.Context, peer int, tag Tag, payload []byte) error
	// RecvBlocking blocks until a message tagged tag arrives from any
	// source, then returns it.
	RecvBlocking(ctx context.Context, tag Tag) (Envelope, error)
	// Abort terminates the process with the given exit code, for
	// environmental fatal errors (see SPEC_FULL.md §7).
	Abort(code int)
}
