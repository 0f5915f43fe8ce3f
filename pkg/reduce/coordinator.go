// Package reduce runs one distributed summation: root broadcasts the run
// parameters, every rank sums its own partition, and root gathers and adds
// the partial sums in rank order.
package reduce

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"piscale/pkg/bigfloat"
	"piscale/pkg/codec"
	"piscale/pkg/comm"
	"piscale/pkg/series"
)

// State is a step of a run. A run moves through the states in order and
// stops at the first failure.
type State int

const (
	Init State = iota
	ParamsBroadcast
	LocalCompute
	Barrier
	Reduce
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case ParamsBroadcast:
		return "params-broadcast"
	case LocalCompute:
		return "local-compute"
	case Barrier:
		return "barrier"
	case Reduce:
		return "reduce"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrParamsMismatch is returned by a worker whose algorithm does not match
// the one root broadcast.
var ErrParamsMismatch = errors.New("run parameters differ from root")

// StateError records the state a run failed in.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string { return fmt.Sprintf("reduce: %s: %v", e.State, e.Err) }

func (e *StateError) Unwrap() error { return e.Err }

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger state transitions are reported to.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// Coordinator drives runs over one communicator. It is used by a single
// goroutine.
type Coordinator struct {
	comm  comm.Comm
	log   *zap.Logger
	state State
}

// New returns a Coordinator for the worker behind c.
func New(c comm.Comm, opts ...Option) *Coordinator {
	co := &Coordinator{comm: c, log: zap.NewNop()}
	for _, opt := range opts {
		opt(co)
	}
	co.log = co.log.With(zap.Stringer("worker", c.Identity()))
	return co
}

// State returns the state the last run reached.
func (c *Coordinator) State() State { return c.state }

func (c *Coordinator) enter(s State) {
	c.state = s
	c.log.Debug("state", zap.Stringer("state", s))
}

func (c *Coordinator) fail(err error) error {
	c.log.Error("run failed", zap.Stringer("state", c.state), zap.Error(err))
	return &StateError{State: c.state, Err: err}
}

// Run performs a reduction and applies alg's final scaling. Root returns
// the result; every other rank returns nil.
func (c *Coordinator) Run(ctx context.Context, alg series.Algorithm, summandCount uint64) (*bigfloat.Float, error) {
	total, err := c.Reduce(ctx, alg, summandCount)
	if err != nil || total == nil {
		return nil, err
	}
	return alg.Finish(total)
}

// Reduce returns the sum of all partial sums on root and nil on the other
// ranks. Only root's summandCount is used; the others adopt it.
func (c *Coordinator) Reduce(ctx context.Context, alg series.Algorithm, summandCount uint64) (*bigfloat.Float, error) {
	c.enter(Init)
	id := c.comm.Identity()

	c.enter(ParamsBroadcast)
	params, err := c.broadcastParams(ctx, alg, summandCount)
	if err != nil {
		return nil, c.fail(err)
	}

	c.enter(LocalCompute)
	partial, err := alg.Partial(params.SummandCount, id)
	if err != nil {
		return nil, c.fail(err)
	}

	c.enter(Barrier)
	if err := c.comm.Barrier(ctx); err != nil {
		return nil, c.fail(err)
	}

	c.enter(Reduce)
	if !id.IsRoot() {
		if err := c.sendPartial(ctx, partial); err != nil {
			return nil, c.fail(err)
		}
		c.enter(Done)
		return nil, nil
	}
	for r := 1; r < id.Size; r++ {
		v, err := c.receivePartial(ctx, r, alg.Precision())
		if err != nil {
			return nil, c.fail(err)
		}
		if _, err := partial.Add(partial, v); err != nil {
			return nil, c.fail(err)
		}
	}
	c.enter(Done)
	return partial, nil
}

func (c *Coordinator) broadcastParams(ctx context.Context, alg series.Algorithm, summandCount uint64) (codec.Params, error) {
	local := codec.Params{
		Algorithm:    string(alg.ID()),
		Precision:    alg.Precision(),
		SummandCount: summandCount,
	}
	b, err := codec.EncodeParams(local)
	if err != nil {
		return codec.Params{}, err
	}
	b, err = c.comm.Broadcast(ctx, b, comm.Root)
	if err != nil {
		return codec.Params{}, err
	}
	params, err := codec.DecodeParams(b)
	if err != nil {
		return codec.Params{}, err
	}
	if params.Algorithm != local.Algorithm {
		return codec.Params{}, fmt.Errorf("%w: root runs %s, this worker %s", ErrParamsMismatch, params.Algorithm, local.Algorithm)
	}
	if params.Precision != local.Precision {
		return codec.Params{}, fmt.Errorf("%w: %w: root uses %d bits, this worker %d",
			ErrParamsMismatch, bigfloat.ErrPrecisionMismatch, params.Precision, local.Precision)
	}
	if params.SummandCount != summandCount {
		c.log.Debug("adopting root summand count",
			zap.Uint64("local", summandCount), zap.Uint64("root", params.SummandCount))
	}
	return params, nil
}

// sendPartial sends the header and the limbs as two messages.
func (c *Coordinator) sendPartial(ctx context.Context, partial *bigfloat.Float) error {
	rec := partial.Encode()
	if err := c.comm.Send(ctx, rec.MarshalHeader(), comm.Root); err != nil {
		return err
	}
	return c.comm.Send(ctx, rec.MarshalPayload(), comm.Root)
}

func (c *Coordinator) receivePartial(ctx context.Context, src int, prec uint) (*bigfloat.Float, error) {
	h, err := c.comm.Receive(ctx, src)
	if err != nil {
		return nil, err
	}
	rec, err := bigfloat.UnmarshalHeader(h)
	if err != nil {
		return nil, fmt.Errorf("rank %d: %w", src, err)
	}
	payload, err := c.comm.Receive(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := rec.UnmarshalPayload(payload); err != nil {
		return nil, fmt.Errorf("rank %d: %w", src, err)
	}
	v, err := bigfloat.Decode(rec, prec)
	if err != nil {
		return nil, fmt.Errorf("rank %d: %w", src, err)
	}
	c.log.Debug("received partial", zap.Int("from", src), zap.Int("limbs", rec.Len()))
	return v, nil
}
