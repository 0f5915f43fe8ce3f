// Package harness is the entry point a worker process runs: it looks up an
// algorithm, validates the workload against the worker count and then
// either benchmarks or calculates π on the communicator it was given.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"piscale/pkg/bench"
	"piscale/pkg/bigfloat"
	"piscale/pkg/codec"
	"piscale/pkg/comm"
	"piscale/pkg/reduce"
	"piscale/pkg/series"
)

// Mode selects what a run does.
type Mode string

const (
	// Benchmark times the regular evaluator on root and the distributed path
	// on every worker.
	Benchmark Mode = "benchmark"

	// Calculate runs the distributed path once and prints π on root.
	Calculate Mode = "calculate"
)

var (
	// ErrWorkerCountExceedsWorkload is returned when there are fewer
	// summands than workers.
	ErrWorkerCountExceedsWorkload = errors.New("worker count exceeds workload")

	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("unknown mode")
)

// ParseMode parses "benchmark" or "calculate".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case Benchmark, Calculate:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (valid: %s, %s)", ErrUnknownMode, s, Benchmark, Calculate)
}

// CheckWorkload rejects runs in which some worker would own no summand.
func CheckWorkload(summandCount uint64, workers int) error {
	if summandCount < uint64(workers) {
		return fmt.Errorf("%w: summand count %d is less than worker count %d, decrease the number of workers",
			ErrWorkerCountExceedsWorkload, summandCount, workers)
	}
	return nil
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(h *Harness) { h.log = log } }

// WithOutput sets where root prints results. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option { return func(h *Harness) { h.out = w } }

// WithIterations sets how many times each benchmark path runs.
func WithIterations(n int) Option { return func(h *Harness) { h.iterations = n } }

// WithSummands replaces the registry's summand count for every mode.
func WithSummands(n uint64) Option { return func(h *Harness) { h.summands = n } }

// WithArchive makes root save a calculated result to path.
func WithArchive(path string) Option { return func(h *Harness) { h.archive = path } }

// Harness runs one worker.
type Harness struct {
	reg   *series.Registry
	comm  comm.Comm
	coord *reduce.Coordinator

	log        *zap.Logger
	out        io.Writer
	iterations int
	summands   uint64
	archive    string
}

// New returns a Harness for the worker behind c.
func New(reg *series.Registry, c comm.Comm, opts ...Option) *Harness {
	h := &Harness{
		reg:        reg,
		comm:       c,
		log:        zap.NewNop(),
		out:        os.Stdout,
		iterations: bench.DefaultIterations,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.coord = reduce.New(c, reduce.WithLogger(h.log))
	return h
}

// Run executes mode with the algorithm registered as id.
func (h *Harness) Run(ctx context.Context, id series.ID, mode Mode) error {
	spec, err := h.reg.Lookup(id)
	if err != nil {
		return err
	}
	summands := spec.CalculationSummands
	if mode == Benchmark {
		summands = spec.BenchmarkSummands
	}
	if h.summands != 0 {
		summands = h.summands
	}
	if err := CheckWorkload(summands, h.comm.Identity().Size); err != nil {
		return err
	}

	log := h.log.With(
		zap.String("algorithm", string(id)),
		zap.String("mode", string(mode)),
		zap.Uint64("summands", summands),
		zap.Uint("precision", spec.Precision()),
	)
	log.Info("starting run")

	switch mode {
	case Benchmark:
		err = h.benchmark(ctx, spec.Algorithm, summands)
	case Calculate:
		err = h.calculate(ctx, spec.Algorithm, summands)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err != nil {
		return err
	}
	log.Info("run finished")
	return nil
}

func (h *Harness) benchmark(ctx context.Context, alg series.Algorithm, summands uint64) error {
	root := h.comm.Identity().IsRoot()
	if root {
		ns, err := bench.Measure(h.iterations, func() error {
			_, err := alg.Regular(summands)
			return err
		})
		if err != nil {
			return err
		}
		if err := bench.PrintResult(h.out, bench.RegularLabel, ns); err != nil {
			return err
		}
	}

	ns, err := bench.Measure(h.iterations, func() error {
		_, err := h.coord.Run(ctx, alg, summands)
		return err
	})
	if err != nil {
		return err
	}
	if root {
		return bench.PrintResult(h.out, bench.DistributedLabel, ns)
	}
	return nil
}

func (h *Harness) calculate(ctx context.Context, alg series.Algorithm, summands uint64) error {
	pi, err := h.coord.Run(ctx, alg, summands)
	if err != nil || pi == nil {
		return err
	}
	if _, err := fmt.Fprintln(h.out, FormatDecimal(pi)); err != nil {
		return err
	}
	if h.archive == "" {
		return nil
	}
	res := &codec.Result{
		Algorithm:    string(alg.ID()),
		SummandCount: summands,
		Workers:      h.comm.Identity().Size,
		Created:      time.Now().UTC(),
		Value:        pi.Encode(),
	}
	if err := codec.SaveResult(h.archive, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	h.log.Info("result archived", zap.String("path", h.archive))
	return nil
}

// FormatDecimal renders x with every digit its precision supports as
// "<d>.<digits>". Values outside [1, 10) fall back to scientific notation.
func FormatDecimal(x *bigfloat.Float) string {
	digits, exp := x.Digits(0)
	if exp != 1 || strings.HasPrefix(digits, "-") {
		return x.String()
	}
	return digits[:1] + "." + digits[1:]
}
