package series

import (
	"piscale/pkg/bigfloat"
	"piscale/pkg/comm"
)

// bellardTerms are the seven fractions of Bellard's formula. Term j of
// summand k is num / (scale*k + offset).
var bellardTerms = [7]struct {
	num           int64
	scale, offset uint64
}{
	{-1 << 5, 4, 1},
	{-1 << 0, 4, 3},
	{+1 << 8, 10, 1},
	{-1 << 6, 10, 3},
	{-1 << 2, 10, 5},
	{-1 << 2, 10, 7},
	{+1 << 0, 10, 9},
}

// Bellard sums
//
//	π = 1/64 * Σ (-1/1024)^k * (-32/(4k+1) - 1/(4k+3) + 256/(10k+1) - 64/(10k+3)
//	                           - 4/(10k+5) - 4/(10k+7) + 1/(10k+9))
type Bellard struct {
	prec uint

	// ratio is -1/1024 at prec bits. Each call derives its own per-rank
	// powers from it.
	ratio *bigfloat.Float
}

var _ Algorithm = (*Bellard)(nil)

// NewBellard returns Bellard's formula evaluated at prec bits.
func NewBellard(prec uint) (*Bellard, error) {
	if err := bigfloat.CheckPrecision(prec); err != nil {
		return nil, err
	}
	ratio, err := bigfloat.New(prec).QuoUint64(bigfloat.NewInt64(-1, prec), 1<<10)
	if err != nil {
		return nil, err
	}
	return &Bellard{prec: prec, ratio: ratio}, nil
}

func (b *Bellard) ID() ID          { return BellardID }
func (b *Bellard) Precision() uint { return b.prec }
func (b *Bellard) Scheme() Scheme  { return Block }

func (b *Bellard) Regular(summandCount uint64) (*bigfloat.Float, error) {
	sum, err := b.Partial(summandCount, single)
	if err != nil {
		return nil, err
	}
	return b.Finish(sum)
}

// Partial walks the owned indices k = rank, rank+size, ... keeping the
// multiplier (-1/1024)^k as running state: it starts at (-1/1024)^rank and is
// multiplied by (-1/1024)^size once per owned index.
func (b *Bellard) Partial(summandCount uint64, id comm.Identity) (*bigfloat.Float, error) {
	if err := checkSummands(summandCount); err != nil {
		return nil, err
	}
	stride, err := Partition(summandCount, id)
	if err != nil {
		return nil, err
	}
	sum := bigfloat.New(b.prec)
	if stride.Len() == 0 {
		return sum, nil
	}

	multiplier, err := bigfloat.New(b.prec).Pow(b.ratio, stride.Start)
	if err != nil {
		return nil, err
	}
	step, err := bigfloat.New(b.prec).Pow(b.ratio, stride.Step)
	if err != nil {
		return nil, err
	}
	var nums [len(bellardTerms)]*bigfloat.Float
	for j, t := range bellardTerms {
		nums[j] = bigfloat.NewInt64(t.num, b.prec)
	}

	term := bigfloat.New(b.prec)
	part := bigfloat.New(b.prec)
	for k := range stride.Indices() {
		for j, t := range bellardTerms {
			if _, err := part.QuoUint64(nums[j], t.scale*k+t.offset); err != nil {
				return nil, err
			}
			if j == 0 {
				_, err = term.Set(part)
			} else {
				_, err = term.Add(term, part)
			}
			if err != nil {
				return nil, err
			}
		}
		if _, err := term.Mul(term, multiplier); err != nil {
			return nil, err
		}
		if _, err := sum.Add(sum, term); err != nil {
			return nil, err
		}
		if _, err := multiplier.Mul(multiplier, step); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// Finish returns total / 64.
func (b *Bellard) Finish(total *bigfloat.Float) (*bigfloat.Float, error) {
	return bigfloat.New(b.prec).QuoUint64(total, 1<<6)
}
