package bigfloat

import (
	"fmt"
	"testing"
)

func BenchmarkRecordRoundTrip(b *testing.B) {
	for _, prec := range []uint{128, 1 << 12, 1 << 16, 1 << 22} {
		b.Run(fmt.Sprintf("prec=%d", prec), func(b *testing.B) {
			x, err := New(prec).QuoUint64(NewInt64(1, prec), 3)
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				rec := x.Encode()
				got, err := UnmarshalHeader(rec.MarshalHeader())
				if err != nil {
					b.Fatal(err)
				}
				if err := got.UnmarshalPayload(rec.MarshalPayload()); err != nil {
					b.Fatal(err)
				}
				if _, err := Decode(got, prec); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
