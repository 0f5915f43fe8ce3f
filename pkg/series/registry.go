package series

import (
	"fmt"
	"slices"
)

// Spec is a registered algorithm with its workload sizes.
type Spec struct {
	Algorithm           Algorithm
	BenchmarkSummands   uint64
	CalculationSummands uint64
}

// Precision returns the precision of the algorithm in bits.
func (s Spec) Precision() uint { return s.Algorithm.Precision() }

// Override replaces parts of a default table entry. Zero fields keep the
// default.
type Override struct {
	Precision           uint   `yaml:"precision"`
	BenchmarkSummands   uint64 `yaml:"benchmark_summands"`
	CalculationSummands uint64 `yaml:"calculation_summands"`
}

type entry struct {
	id                  ID
	precision           uint
	benchmarkSummands   uint64
	calculationSummands uint64
	build               func(prec uint) (Algorithm, error)
}

var table = []entry{
	{
		id:                  BellardID,
		precision:           1 << 22,
		benchmarkSummands:   1 << 8,
		calculationSummands: 1 << 27,
		build:               func(prec uint) (Algorithm, error) { return NewBellard(prec) },
	},
	{
		id:                  LeibnizID,
		precision:           1 << 7,
		benchmarkSummands:   1 << 26,
		calculationSummands: 1 << 45,
		build:               func(prec uint) (Algorithm, error) { return NewLeibniz(prec) },
	},
}

// Registry maps IDs to specs. It is built once and never modified.
type Registry struct {
	specs map[ID]Spec
}

// NewRegistry builds the registry from the static table with overrides
// applied. An override for an unknown ID is an error.
func NewRegistry(overrides map[ID]Override) (*Registry, error) {
	for id := range overrides {
		if !slices.ContainsFunc(table, func(e entry) bool { return e.id == id }) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, id)
		}
	}

	r := &Registry{specs: make(map[ID]Spec, len(table))}
	for _, e := range table {
		o := overrides[e.id]
		prec := e.precision
		if o.Precision != 0 {
			prec = o.Precision
		}
		alg, err := e.build(prec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.id, err)
		}
		spec := Spec{
			Algorithm:           alg,
			BenchmarkSummands:   e.benchmarkSummands,
			CalculationSummands: e.calculationSummands,
		}
		if o.BenchmarkSummands != 0 {
			spec.BenchmarkSummands = o.BenchmarkSummands
		}
		if o.CalculationSummands != 0 {
			spec.CalculationSummands = o.CalculationSummands
		}
		r.specs[e.id] = spec
	}
	return r, nil
}

// Lookup returns the spec registered under id.
func (r *Registry) Lookup(id ID) (Spec, error) {
	s, ok := r.specs[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownAlgorithm, id, r.IDs())
	}
	return s, nil
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
