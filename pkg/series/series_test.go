package series

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piscale/pkg/bigfloat"
	"piscale/pkg/comm"
)

const piDigits = "3141592653589793238462643383279502884197169399375105820974944592307816406286208998628034825342117067982148086"

// assertClose fails unless got is within a relative 2**-(prec-slack) of want.
func assertClose(t *testing.T, want, got *bigfloat.Float, slack uint) {
	t.Helper()
	diff, err := bigfloat.New(want.Prec()).Sub(want, got)
	require.NoError(t, err)
	if diff.IsZero() {
		return
	}
	ratio, err := bigfloat.New(want.Prec()).Quo(diff, want)
	require.NoError(t, err)
	bound := math.Ldexp(1, -int(want.Prec()-slack))
	assert.Less(t, math.Abs(ratio.Float64()), bound, "want %s, got %s", want, got)
}

func sumPartials(t *testing.T, alg Algorithm, n uint64, size int) *bigfloat.Float {
	t.Helper()
	total, err := alg.Partial(n, comm.Identity{Rank: 0, Size: size})
	require.NoError(t, err)
	for r := 1; r < size; r++ {
		p, err := alg.Partial(n, comm.Identity{Rank: r, Size: size})
		require.NoError(t, err)
		_, err = total.Add(total, p)
		require.NoError(t, err)
	}
	return total
}

func TestLeibnizKnownValues(t *testing.T) {
	l, err := NewLeibniz(128)
	require.NoError(t, err)

	one, err := l.Partial(1, comm.Identity{Rank: 0, Size: 1})
	require.NoError(t, err)
	assert.True(t, one.Equal(bigfloat.NewInt64(1, 128)))

	pi, err := l.Regular(1)
	require.NoError(t, err)
	assert.True(t, pi.Equal(bigfloat.NewInt64(4, 128)))

	pi, err = l.Regular(2)
	require.NoError(t, err)
	digits, exp := pi.Digits(5)
	assert.Equal(t, "26667", digits)
	assert.Equal(t, 1, exp)
}

func TestLeibnizTwoWorkersMatchReference(t *testing.T) {
	l, err := NewLeibniz(128)
	require.NoError(t, err)

	reference, err := l.Partial(4, comm.Identity{Rank: 0, Size: 1})
	require.NoError(t, err)
	assertClose(t, reference, sumPartials(t, l, 4, 2), 4)
}

func TestLeibnizConverges(t *testing.T) {
	l, err := NewLeibniz(128)
	require.NoError(t, err)
	pi, err := l.Regular(10000)
	require.NoError(t, err)
	// The error of n terms is about 1/n.
	digits, exp := pi.Digits(4)
	assert.Equal(t, 1, exp)
	assert.Equal(t, "3141", digits)
}

func TestBellardConverges(t *testing.T) {
	b, err := NewBellard(512)
	require.NoError(t, err)

	// Each summand adds three decimal digits.
	pi, err := b.Regular(40)
	require.NoError(t, err)
	digits, exp := pi.Digits(100)
	assert.Equal(t, 1, exp)
	assert.Equal(t, piDigits[:98], digits[:98])
}

func TestBellardPartitionsMatchReference(t *testing.T) {
	b, err := NewBellard(512)
	require.NoError(t, err)

	reference, err := b.Partial(50, comm.Identity{Rank: 0, Size: 1})
	require.NoError(t, err)
	for _, size := range []int{2, 3, 7} {
		assertClose(t, reference, sumPartials(t, b, 50, size), 8)
	}
}

func TestZeroSummands(t *testing.T) {
	for _, alg := range []Algorithm{mustLeibniz(t, 64), mustBellard(t, 64)} {
		for r := 0; r < 3; r++ {
			p, err := alg.Partial(0, comm.Identity{Rank: r, Size: 3})
			require.NoError(t, err)
			assert.True(t, p.IsZero(), "%s rank %d", alg.ID(), r)
		}
	}
}

func TestPartialIsDeterministic(t *testing.T) {
	for _, alg := range []Algorithm{mustLeibniz(t, 256), mustBellard(t, 256)} {
		id := comm.Identity{Rank: 1, Size: 3}
		a, err := alg.Partial(30, id)
		require.NoError(t, err)
		// Evaluating another rank in between must not leak state.
		_, err = alg.Partial(30, comm.Identity{Rank: 2, Size: 5})
		require.NoError(t, err)
		b, err := alg.Partial(30, id)
		require.NoError(t, err)
		assert.Equal(t, a.Encode(), b.Encode(), "%s", alg.ID())
	}
}

func TestSingleWorkerAgreesWithRegular(t *testing.T) {
	for _, alg := range []Algorithm{mustLeibniz(t, 128), mustBellard(t, 1024)} {
		regular, err := alg.Regular(64)
		require.NoError(t, err)
		partial, err := alg.Partial(64, comm.Identity{Rank: 0, Size: 1})
		require.NoError(t, err)
		finished, err := alg.Finish(partial)
		require.NoError(t, err)
		assert.True(t, regular.Equal(finished), "%s", alg.ID())
	}
}

func TestTooManySummands(t *testing.T) {
	_, err := mustLeibniz(t, 64).Partial(MaxSummands+1, comm.Identity{Rank: 0, Size: 1})
	assert.ErrorIs(t, err, ErrTooManySummands)
	_, err = mustBellard(t, 64).Regular(MaxSummands + 1)
	assert.ErrorIs(t, err, ErrTooManySummands)
}

func TestPartialRejectsInvalidIdentity(t *testing.T) {
	algs := []Algorithm{mustLeibniz(t, 64), mustBellard(t, 64)}
	for _, alg := range algs {
		for _, id := range []comm.Identity{{Rank: 0, Size: 0}, {Rank: 3, Size: 3}} {
			_, err := alg.Partial(3, id)
			assert.ErrorIs(t, err, comm.ErrInvalidIdentity, "%s %v", alg.ID(), id)
		}
	}
}

func TestInvalidPrecision(t *testing.T) {
	_, err := NewLeibniz(0)
	assert.ErrorIs(t, err, bigfloat.ErrInvalidPrecision)
	_, err = NewBellard(0)
	assert.ErrorIs(t, err, bigfloat.ErrInvalidPrecision)
}

func mustLeibniz(t *testing.T, prec uint) *Leibniz {
	t.Helper()
	l, err := NewLeibniz(prec)
	require.NoError(t, err)
	return l
}

func mustBellard(t *testing.T, prec uint) *Bellard {
	t.Helper()
	b, err := NewBellard(prec)
	require.NoError(t, err)
	return b
}
