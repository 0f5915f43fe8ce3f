package comm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultPrefix is the subject prefix used when NATSOptions.Prefix is empty.
const DefaultPrefix = "piscale"

// NATSOptions configures DialNATS.
type NATSOptions struct {
	// Prefix is the first subject token of every message.
	Prefix string

	// JoinRetry is the interval between join attempts while the root is not
	// yet listening. Defaults to 100ms.
	JoinRetry time.Duration

	// Logger receives connection events. Defaults to a no-op logger.
	Logger *zap.Logger

	// Options are passed to nats.Connect.
	Options []nats.Option
}

// NATS is one rank of a communicator built on core NATS subjects:
//
//	<prefix>.<run>.join              non-root -> root bootstrap requests
//	<prefix>.<run>.bcast.<root>      broadcast from root
//	<prefix>.<run>.barrier.arrive    non-root -> root
//	<prefix>.<run>.barrier.release   root -> non-root
//	<prefix>.<run>.p2p.<dst>.<src>   point to point
//
// Every subscription is in place before DialNATS returns on any rank, so no
// protocol message can be published to a subject nobody listens on.
type NATS struct {
	id   Identity
	nc   *nats.Conn
	base string
	log  *zap.Logger

	bcast   map[int]*nats.Subscription
	arrive  *nats.Subscription
	release *nats.Subscription
	p2p     []*nats.Subscription
}

var _ Comm = (*NATS)(nil)

// DialNATS connects rank id.Rank of run runID to the server at url and
// completes the bootstrap handshake with the other ranks. It blocks until
// all id.Size ranks have dialed.
func DialNATS(ctx context.Context, url, runID string, id Identity, opts NATSOptions) (*NATS, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, errors.New("comm: empty run id")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.JoinRetry <= 0 {
		opts.JoinRetry = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.With(zap.String("run", runID), zap.Int("rank", id.Rank), zap.Int("size", id.Size))

	natsOpts := append([]nats.Option{
		nats.Name(fmt.Sprintf("piscale %s rank %d", runID, id.Rank)),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
	}, opts.Options...)

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, opError("connect", id, -1, err)
	}
	log.Debug("connected to NATS", zap.String("url", nc.ConnectedUrl()))

	n := &NATS{
		id:    id,
		nc:    nc,
		base:  opts.Prefix + "." + runID,
		log:   log,
		bcast: make(map[int]*nats.Subscription),
		p2p:   make([]*nats.Subscription, id.Size),
	}
	if err := n.subscribe(); err != nil {
		nc.Close()
		return nil, opError("subscribe", id, -1, err)
	}
	if err := n.join(ctx, opts.JoinRetry); err != nil {
		nc.Close()
		return nil, err
	}
	if err := n.Barrier(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	log.Info("joined run")
	return n, nil
}

func (n *NATS) subject(tokens ...string) string {
	s := n.base
	for _, t := range tokens {
		s += "." + t
	}
	return s
}

func (n *NATS) subscribe() error {
	var err error
	for r := 0; r < n.id.Size; r++ {
		if r == n.id.Rank {
			continue
		}
		if n.bcast[r], err = n.nc.SubscribeSync(n.subject("bcast", strconv.Itoa(r))); err != nil {
			return err
		}
	}
	if n.id.IsRoot() {
		n.arrive, err = n.nc.SubscribeSync(n.subject("barrier", "arrive"))
	} else {
		n.release, err = n.nc.SubscribeSync(n.subject("barrier", "release"))
	}
	if err != nil {
		return err
	}
	for src := 0; src < n.id.Size; src++ {
		if n.p2p[src], err = n.nc.SubscribeSync(n.subject("p2p", strconv.Itoa(n.id.Rank), strconv.Itoa(src))); err != nil {
			return err
		}
	}
	return n.nc.Flush()
}

// join runs the bootstrap handshake. The root acknowledges one join request
// per non-root rank; non-root ranks retry until the root is listening.
func (n *NATS) join(ctx context.Context, retry time.Duration) error {
	subj := n.subject("join")
	if n.id.IsRoot() {
		sub, err := n.nc.SubscribeSync(subj)
		if err != nil {
			return opError("join", n.id, -1, err)
		}
		defer sub.Unsubscribe()
		if err := n.nc.Flush(); err != nil {
			return opError("join", n.id, -1, err)
		}
		joined := make(map[int]bool)
		for len(joined) < n.id.Size-1 {
			msg, err := sub.NextMsgWithContext(ctx)
			if err != nil {
				return opError("join", n.id, -1, err)
			}
			r, err := strconv.Atoi(string(msg.Data))
			if err != nil || checkPeer(n.id, r) != nil || r == Root {
				return opError("join", n.id, -1, fmt.Errorf("bad join request %q", msg.Data))
			}
			if !joined[r] {
				n.log.Debug("rank joined", zap.Int("peer", r))
			}
			joined[r] = true
			if err := msg.Respond([]byte("ok")); err != nil {
				return opError("join", n.id, r, err)
			}
		}
		return nil
	}

	rank := []byte(strconv.Itoa(n.id.Rank))
	for {
		reqCtx, cancel := context.WithTimeout(ctx, retry)
		_, err := n.nc.RequestWithContext(reqCtx, subj, rank)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return opError("join", n.id, Root, ctx.Err())
		}
		if !errors.Is(err, nats.ErrNoResponders) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
			return opError("join", n.id, Root, err)
		}
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return opError("join", n.id, Root, ctx.Err())
		}
	}
}

func (n *NATS) Identity() Identity { return n.id }

func (n *NATS) publish(op, subj string, data []byte, peer int) error {
	if limit := n.nc.MaxPayload(); int64(len(data)) > limit {
		return opError(op, n.id, peer, fmt.Errorf("payload of %d bytes exceeds server limit %d", len(data), limit))
	}
	if err := n.nc.Publish(subj, data); err != nil {
		return opError(op, n.id, peer, err)
	}
	return nil
}

func (n *NATS) next(ctx context.Context, op string, sub *nats.Subscription, peer int) ([]byte, error) {
	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, opError(op, n.id, peer, err)
	}
	return msg.Data, nil
}

func (n *NATS) Broadcast(ctx context.Context, data []byte, root int) ([]byte, error) {
	if err := checkPeer(n.id, root); err != nil {
		return nil, opError("broadcast", n.id, root, err)
	}
	if n.id.Rank != root {
		return n.next(ctx, "broadcast", n.bcast[root], root)
	}
	if err := n.publish("broadcast", n.subject("bcast", strconv.Itoa(root)), data, -1); err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

func (n *NATS) Barrier(ctx context.Context) error {
	if !n.id.IsRoot() {
		if err := n.publish("barrier", n.subject("barrier", "arrive"), nil, Root); err != nil {
			return err
		}
		_, err := n.next(ctx, "barrier", n.release, Root)
		return err
	}
	for i := 1; i < n.id.Size; i++ {
		if _, err := n.next(ctx, "barrier", n.arrive, -1); err != nil {
			return err
		}
	}
	if n.id.Size == 1 {
		return nil
	}
	return n.publish("barrier", n.subject("barrier", "release"), nil, -1)
}

func (n *NATS) Send(ctx context.Context, data []byte, dst int) error {
	if err := checkPeer(n.id, dst); err != nil {
		return opError("send", n.id, dst, err)
	}
	return n.publish("send", n.subject("p2p", strconv.Itoa(dst), strconv.Itoa(n.id.Rank)), data, dst)
}

func (n *NATS) Receive(ctx context.Context, src int) ([]byte, error) {
	if err := checkPeer(n.id, src); err != nil {
		return nil, opError("receive", n.id, src, err)
	}
	return n.next(ctx, "receive", n.p2p[src], src)
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() error {
	if n.nc.IsClosed() {
		return nil
	}
	err := n.nc.Flush()
	n.nc.Close()
	if err != nil {
		return opError("close", n.id, -1, err)
	}
	return nil
}
