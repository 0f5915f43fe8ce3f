package comm

import (
	"context"
	"fmt"
	"sync"
)

type kind int

const (
	kindData kind = iota
	kindBroadcast
	kindBarrier
	numKinds
)

var (
	sendOps = [numKinds]string{"send", "broadcast", "barrier"}
	recvOps = [numKinds]string{"receive", "broadcast", "barrier"}
)

// meshBuffer is the number of messages a link holds before Send blocks.
const meshBuffer = 16

// fabric holds one channel per (kind, src, dst).
type fabric struct {
	size  int
	links [numKinds][][]chan []byte
}

// Endpoint is one rank of an in-process mesh. Each endpoint must be driven by
// a single goroutine.
type Endpoint struct {
	id     Identity
	fab    *fabric
	closed chan struct{}
	once   sync.Once
}

var _ Comm = (*Endpoint)(nil)

// NewMesh connects size endpoints; endpoint i has rank i.
func NewMesh(size int) ([]*Endpoint, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: mesh size %d", ErrInvalidIdentity, size)
	}
	fab := &fabric{size: size}
	for k := range fab.links {
		fab.links[k] = make([][]chan []byte, size)
		for src := range fab.links[k] {
			fab.links[k][src] = make([]chan []byte, size)
			for dst := range fab.links[k][src] {
				fab.links[k][src][dst] = make(chan []byte, meshBuffer)
			}
		}
	}
	eps := make([]*Endpoint, size)
	for r := range eps {
		eps[r] = &Endpoint{
			id:     Identity{Rank: r, Size: size},
			fab:    fab,
			closed: make(chan struct{}),
		}
	}
	return eps, nil
}

func (e *Endpoint) Identity() Identity { return e.id }

func (e *Endpoint) send(ctx context.Context, k kind, data []byte, dst int) error {
	if err := checkPeer(e.id, dst); err != nil {
		return opError(sendOps[k], e.id, dst, err)
	}
	// The receiver owns what it gets.
	buf := append([]byte(nil), data...)
	select {
	case e.fab.links[k][e.id.Rank][dst] <- buf:
		return nil
	case <-e.closed:
		return opError(sendOps[k], e.id, dst, ErrClosed)
	case <-ctx.Done():
		return opError(sendOps[k], e.id, dst, ctx.Err())
	}
}

func (e *Endpoint) recv(ctx context.Context, k kind, src int) ([]byte, error) {
	if err := checkPeer(e.id, src); err != nil {
		return nil, opError(recvOps[k], e.id, src, err)
	}
	select {
	case b := <-e.fab.links[k][src][e.id.Rank]:
		return b, nil
	case <-e.closed:
		return nil, opError(recvOps[k], e.id, src, ErrClosed)
	case <-ctx.Done():
		return nil, opError(recvOps[k], e.id, src, ctx.Err())
	}
}

func (e *Endpoint) Broadcast(ctx context.Context, data []byte, root int) ([]byte, error) {
	if e.id.Rank != root {
		return e.recv(ctx, kindBroadcast, root)
	}
	for r := 0; r < e.id.Size; r++ {
		if r == root {
			continue
		}
		if err := e.send(ctx, kindBroadcast, data, r); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), data...), nil
}

func (e *Endpoint) Barrier(ctx context.Context) error {
	if !e.id.IsRoot() {
		if err := e.send(ctx, kindBarrier, nil, Root); err != nil {
			return err
		}
		_, err := e.recv(ctx, kindBarrier, Root)
		return err
	}
	for r := 1; r < e.id.Size; r++ {
		if _, err := e.recv(ctx, kindBarrier, r); err != nil {
			return err
		}
	}
	for r := 1; r < e.id.Size; r++ {
		if err := e.send(ctx, kindBarrier, nil, r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) Send(ctx context.Context, data []byte, dst int) error {
	return e.send(ctx, kindData, data, dst)
}

func (e *Endpoint) Receive(ctx context.Context, src int) ([]byte, error) {
	return e.recv(ctx, kindData, src)
}

// Close unblocks pending operations on this endpoint. Peers are unaffected.
func (e *Endpoint) Close() error {
	e.once.Do(func() { close(e.closed) })
	return nil
}
