// Package bench times the regular and distributed evaluators and prints the
// results in the fixed-width form the benchmark mode reports.
package bench

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultIterations is how many times each path runs in a benchmark.
const DefaultIterations = 100

// Labels of the two lines a benchmark prints.
const (
	RegularLabel     = "Regular time: "
	DistributedLabel = "    MPI time: "
)

// Measure calls fn iterations times and returns the mean wall time of one
// call in nanoseconds. The first error stops the measurement.
func Measure(iterations int, fn func() error) (float64, error) {
	if iterations <= 0 {
		return 0, errors.New("bench: iterations must be positive")
	}
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := fn(); err != nil {
			return 0, err
		}
	}
	return float64(time.Since(start).Nanoseconds()) / float64(iterations), nil
}

// PrintResult writes label followed by ns right-justified in 15 columns with
// two decimals.
func PrintResult(w io.Writer, label string, ns float64) error {
	_, err := fmt.Fprintf(w, "%s%15.2f\n", label, ns)
	return err
}
