// Package series evaluates the π series the workers sum: Leibniz's
// alternating series and Bellard's base-1024 formula. Each algorithm can be
// evaluated whole on one worker (Regular) or as the partial sum of the
// indices one worker owns (Partial); the partial sums of all workers, added
// together and passed to Finish, give the same value as Regular.
package series

import (
	"errors"
	"fmt"

	"piscale/pkg/bigfloat"
	"piscale/pkg/comm"
)

// ID names an algorithm.
type ID string

const (
	LeibnizID ID = "leibniz"
	BellardID ID = "bellard"
)

var (
	// ErrUnknownAlgorithm is returned for an ID that is not registered.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrTooManySummands is returned when the index arithmetic of a series
	// would overflow.
	ErrTooManySummands = errors.New("too many summands")
)

// MaxSummands is the largest summand count any algorithm accepts.
const MaxSummands = 1 << 58

// Algorithm evaluates one π series at a fixed precision. Implementations are
// immutable and safe for concurrent use.
type Algorithm interface {
	ID() ID
	Precision() uint
	Scheme() Scheme

	// Regular evaluates summandCount terms on one worker and returns π.
	Regular(summandCount uint64) (*bigfloat.Float, error)

	// Partial returns the sum of the terms id owns among the first
	// summandCount.
	Partial(summandCount uint64, id comm.Identity) (*bigfloat.Float, error)

	// Finish scales the sum of every worker's partial sum into π.
	Finish(total *bigfloat.Float) (*bigfloat.Float, error)
}

func checkSummands(n uint64) error {
	if n > MaxSummands {
		return fmt.Errorf("%w: %d > %d", ErrTooManySummands, n, uint64(MaxSummands))
	}
	return nil
}

var single = comm.Identity{Rank: 0, Size: 1}
