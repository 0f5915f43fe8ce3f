package comm

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Root is the rank that broadcasts parameters and accumulates the result.
const Root = 0

// ErrInvalidIdentity is returned by Identity.Validate.
var ErrInvalidIdentity = errors.New("invalid worker identity")

// Identity is a worker's position in the communicator.
type Identity struct {
	Rank int `yaml:"rank"`
	Size int `yaml:"size"`
}

// Validate checks 0 <= Rank < Size.
func (id Identity) Validate() error {
	if id.Size < 1 {
		return fmt.Errorf("%w: size %d", ErrInvalidIdentity, id.Size)
	}
	if id.Rank < 0 || id.Rank >= id.Size {
		return fmt.Errorf("%w: rank %d not in [0, %d)", ErrInvalidIdentity, id.Rank, id.Size)
	}
	return nil
}

// IsRoot reports whether id is the root rank.
func (id Identity) IsRoot() bool { return id.Rank == Root }

func (id Identity) String() string { return fmt.Sprintf("%d/%d", id.Rank, id.Size) }

// envPairs lists the variables launchers use to publish rank and size, in
// lookup order.
var envPairs = [][2]string{
	{"PI_RANK", "PI_SIZE"},
	{"OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE"},
	{"PMI_RANK", "PMI_SIZE"},
}

// IdentityFromEnv reads the identity from the environment. ok is false when
// none of the known variable pairs is set.
func IdentityFromEnv() (id Identity, ok bool, err error) {
	return identityFrom(os.LookupEnv)
}

func identityFrom(lookup func(string) (string, bool)) (Identity, bool, error) {
	for _, pair := range envPairs {
		rank, hasRank := lookup(pair[0])
		size, hasSize := lookup(pair[1])
		if !hasRank && !hasSize {
			continue
		}
		if !hasRank || !hasSize {
			return Identity{}, true, fmt.Errorf("%w: %s and %s must be set together", ErrInvalidIdentity, pair[0], pair[1])
		}
		r, err := strconv.Atoi(rank)
		if err != nil {
			return Identity{}, true, fmt.Errorf("%w: %s=%q", ErrInvalidIdentity, pair[0], rank)
		}
		s, err := strconv.Atoi(size)
		if err != nil {
			return Identity{}, true, fmt.Errorf("%w: %s=%q", ErrInvalidIdentity, pair[1], size)
		}
		id := Identity{Rank: r, Size: s}
		return id, true, id.Validate()
	}
	return Identity{}, false, nil
}
