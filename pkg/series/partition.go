package series

import (
	"iter"

	"piscale/pkg/comm"
)

// Scheme labels how an evaluator advances its running state over the indices
// Partition assigns.
type Scheme int

const (
	// Striped gives rank r of n the indices r, r+n, r+2n, ...
	Striped Scheme = iota

	// Block walks a shared iteration counter in steps of n starting at the
	// rank's phase offset. It owns the same indices as Striped; evaluators
	// that keep incremental state (Bellard) advance that state by a whole
	// block of n terms per owned index.
	Block
)

func (s Scheme) String() string {
	switch s {
	case Striped:
		return "striped"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Stride is the arithmetic progression of indices one worker owns:
// Start, Start+Step, ... while below Limit. A zero Step owns nothing.
type Stride struct {
	Start uint64
	Step  uint64
	Limit uint64
}

// Partition returns the indices in [0, summandCount) owned by id. Both
// schemes own the same indices, so it takes none. It is a pure function of
// its arguments. A worker whose rank is not below summandCount owns nothing;
// an identity failing Validate is an error.
func Partition(summandCount uint64, id comm.Identity) (Stride, error) {
	if err := id.Validate(); err != nil {
		return Stride{}, err
	}
	return Stride{Start: uint64(id.Rank), Step: uint64(id.Size), Limit: summandCount}, nil
}

// Len returns the number of owned indices.
func (s Stride) Len() uint64 {
	if s.Step == 0 || s.Start >= s.Limit {
		return 0
	}
	return (s.Limit-s.Start-1)/s.Step + 1
}

// Contains reports whether i is owned.
func (s Stride) Contains(i uint64) bool {
	return s.Step != 0 && i >= s.Start && i < s.Limit && (i-s.Start)%s.Step == 0
}

// Indices yields the owned indices in increasing order.
func (s Stride) Indices() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		if s.Step == 0 {
			return
		}
		for i := s.Start; i < s.Limit; i += s.Step {
			if !yield(i) {
				return
			}
			if s.Limit-i <= s.Step {
				return
			}
		}
	}
}
