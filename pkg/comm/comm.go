// Package comm provides the message-passing capability the reduction runs on:
// a fixed set of ranked workers that can broadcast from a root, rendezvous at
// a barrier and exchange point-to-point byte messages.
//
// Every operation blocks until it completes. There are no timeouts; a peer
// that never answers hangs the run. Any failure is returned as a
// *MessagingError and is fatal to the run that observed it.
//
// Two transports are provided. Mesh connects goroutines inside one process
// and is used by `pi local` and by tests. NATS connects one process per rank
// through a NATS server.
package comm

import (
	"context"
	"errors"
	"fmt"
)

// ErrMessaging matches every *MessagingError.
var ErrMessaging = errors.New("messaging failure")

// ErrClosed is wrapped by operations on a closed endpoint.
var ErrClosed = errors.New("endpoint closed")

// Comm is a worker's view of the communicator.
type Comm interface {
	// Identity returns the rank and size of this worker. It never changes.
	Identity() Identity

	// Broadcast returns root's data on every rank. On root, data is sent and
	// returned; on the other ranks it is ignored.
	Broadcast(ctx context.Context, data []byte, root int) ([]byte, error)

	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error

	// Send delivers data to rank dst. Messages between a pair of ranks
	// arrive in the order they were sent.
	Send(ctx context.Context, data []byte, dst int) error

	// Receive returns the next message sent by rank src.
	Receive(ctx context.Context, src int) ([]byte, error)

	// Close releases the endpoint.
	Close() error
}

// MessagingError describes a failed transport operation.
type MessagingError struct {
	Op   string
	Rank int
	Peer int
	Err  error
}

func (e *MessagingError) Error() string {
	if e.Peer < 0 {
		return fmt.Sprintf("%s: rank %d %s: %v", ErrMessaging, e.Rank, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: rank %d %s peer %d: %v", ErrMessaging, e.Rank, e.Op, e.Peer, e.Err)
}

func (e *MessagingError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMessaging) true for every MessagingError.
func (e *MessagingError) Is(target error) bool { return target == ErrMessaging }

func opError(op string, id Identity, peer int, err error) error {
	return &MessagingError{Op: op, Rank: id.Rank, Peer: peer, Err: err}
}

func checkPeer(id Identity, peer int) error {
	if peer < 0 || peer >= id.Size {
		return fmt.Errorf("rank %d out of range [0, %d)", peer, id.Size)
	}
	return nil
}
