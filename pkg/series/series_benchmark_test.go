package series

import (
	"fmt"
	"testing"

	"piscale/pkg/comm"
)

func BenchmarkPartial(b *testing.B) {
	leibniz, err := NewLeibniz(128)
	if err != nil {
		b.Fatal(err)
	}
	bellard, err := NewBellard(1 << 12)
	if err != nil {
		b.Fatal(err)
	}
	cases := []struct {
		alg Algorithm
		n   uint64
	}{
		{leibniz, 1 << 14},
		{bellard, 1 << 8},
	}

	// One partition of the workload split across 1..8 workers.
	for _, c := range cases {
		for _, size := range []int{1, 2, 4, 8} {
			b.Run(fmt.Sprintf("%s/workers=%d", c.alg.ID(), size), func(b *testing.B) {
				id := comm.Identity{Rank: size - 1, Size: size}
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					sum, err := c.alg.Partial(c.n, id)
					if err != nil {
						b.Fatal(err)
					}
					// Prevent compiler optimization
					if sum.IsZero() {
						b.Fatal("unexpected zero partial sum")
					}
				}
			})
		}
	}
}
