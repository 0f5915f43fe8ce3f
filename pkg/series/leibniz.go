package series

import (
	"piscale/pkg/bigfloat"
	"piscale/pkg/comm"
)

// Leibniz sums π/4 = 1 - 1/3 + 1/5 - 1/7 + ...
type Leibniz struct {
	prec uint
}

var _ Algorithm = (*Leibniz)(nil)

// NewLeibniz returns the Leibniz series evaluated at prec bits.
func NewLeibniz(prec uint) (*Leibniz, error) {
	if err := bigfloat.CheckPrecision(prec); err != nil {
		return nil, err
	}
	return &Leibniz{prec: prec}, nil
}

func (l *Leibniz) ID() ID          { return LeibnizID }
func (l *Leibniz) Precision() uint { return l.prec }
func (l *Leibniz) Scheme() Scheme  { return Striped }

func (l *Leibniz) Regular(summandCount uint64) (*bigfloat.Float, error) {
	sum, err := l.Partial(summandCount, single)
	if err != nil {
		return nil, err
	}
	return l.Finish(sum)
}

func (l *Leibniz) Partial(summandCount uint64, id comm.Identity) (*bigfloat.Float, error) {
	if err := checkSummands(summandCount); err != nil {
		return nil, err
	}
	stride, err := Partition(summandCount, id)
	if err != nil {
		return nil, err
	}
	sum := bigfloat.New(l.prec)
	term := bigfloat.New(l.prec)
	plus := bigfloat.NewInt64(1, l.prec)
	minus := bigfloat.NewInt64(-1, l.prec)

	for i := range stride.Indices() {
		sign := plus
		if i%2 == 1 {
			sign = minus
		}
		if _, err := term.QuoUint64(sign, 2*i+1); err != nil {
			return nil, err
		}
		if _, err := sum.Add(sum, term); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// Finish returns 4 * total.
func (l *Leibniz) Finish(total *bigfloat.Float) (*bigfloat.Float, error) {
	return bigfloat.New(l.prec).MulInt64(total, 4)
}
