package bigfloat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// ErrMalformedRecord is returned when a wire record is inconsistent with
// itself or with the payload delivered for it.
var ErrMalformedRecord = errors.New("malformed record")

const (
	// LimbBits is the width of one limb.
	LimbBits = 64

	// RecordVersion is the layout version written into every header.
	RecordVersion = 1

	// HeaderSize is the encoded size of a record header in bytes.
	HeaderSize = 20
)

// Record is the transport form of a Float. The magnitude is held in base
// 2**64 limbs, least significant first, and the value is
//
//	sign(LimbCount) * 0.L[n-1] L[n-2] ... L[0] * (2**64)**Exp
//
// where n = |LimbCount|. A zero value has LimbCount == 0, Exp == 0 and no
// limbs. Encode always produces the minimal form: both the most and the
// least significant limb are non-zero.
type Record struct {
	Prec      uint32
	LimbCount int32
	Exp       int64
	Limbs     []uint64
}

// header is the fixed part of a record as it appears on the wire.
type header struct {
	Version   uint32
	Prec      uint32
	LimbCount int32
	Exp       int64
}

// MaxLimbs returns the largest limb count an encoded value of prec bits can
// need.
func MaxLimbs(prec uint) int {
	return int((prec+LimbBits-1)/LimbBits) + 1
}

// maxLimbExp bounds Exp so the binary exponent stays inside big.Float's range.
const maxLimbExp = big.MaxExp/LimbBits + 1

// Len returns the number of limbs declared by the header.
func (r Record) Len() int {
	if r.LimbCount < 0 {
		return -int(r.LimbCount)
	}
	return int(r.LimbCount)
}

// Encode returns the wire record for x.
func (x *Float) Encode() Record {
	rec := Record{Prec: uint32(x.prec)}
	if x.f.Sign() == 0 {
		return rec
	}

	// x = mant * 2**e with 0.5 <= |mant| < 1. Align the exponent to a limb
	// boundary and scale the mantissa into an integer of n limbs.
	mant := new(big.Float)
	e := x.f.MantExp(mant)
	limbExp := ceilDiv(e, LimbBits)
	shift := limbExp*LimbBits - e
	n := (int(x.prec) + shift + LimbBits - 1) / LimbBits

	mant.Abs(mant)
	mant.SetMantExp(mant, n*LimbBits-shift)
	z, acc := mant.Int(nil)
	if acc != big.Exact {
		panic("bigfloat: mantissa is not integral after scaling")
	}

	limbs := toLimbs(z, n)
	lo := 0
	for lo < len(limbs) && limbs[lo] == 0 {
		lo++
	}
	limbs = limbs[lo:]

	rec.Exp = int64(limbExp)
	rec.LimbCount = int32(len(limbs))
	if x.f.Sign() < 0 {
		rec.LimbCount = -rec.LimbCount
	}
	rec.Limbs = limbs
	return rec
}

// Decode rebuilds the value carried by rec at precision prec. The record must
// have been produced at the same precision.
func Decode(rec Record, prec uint) (*Float, error) {
	if uint(rec.Prec) != prec {
		return nil, fmt.Errorf("%w: record has %d bits, want %d", ErrPrecisionMismatch, rec.Prec, prec)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	z := New(prec)
	n := rec.Len()
	if n == 0 {
		return z, nil
	}
	z.f.SetInt(fromLimbs(rec.Limbs))
	z.f.SetMantExp(z.f, int(rec.Exp-int64(n))*LimbBits)
	if rec.LimbCount < 0 {
		z.f.Neg(z.f)
	}
	return z, nil
}

// Validate checks the structural invariants of r.
func (r Record) Validate() error {
	if err := r.validateHeader(); err != nil {
		return err
	}
	n := r.Len()
	if len(r.Limbs) != n {
		return fmt.Errorf("%w: header declares %d limbs, payload has %d", ErrMalformedRecord, n, len(r.Limbs))
	}
	if n > 0 && (r.Limbs[n-1] == 0 || r.Limbs[0] == 0) {
		return fmt.Errorf("%w: limbs are not normalized", ErrMalformedRecord)
	}
	return nil
}

func (r Record) validateHeader() error {
	if err := CheckPrecision(uint(r.Prec)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	n := r.Len()
	if limit := MaxLimbs(uint(r.Prec)); n > limit {
		return fmt.Errorf("%w: %d limbs exceed %d for %d bits", ErrMalformedRecord, n, limit, r.Prec)
	}
	if n == 0 && r.Exp != 0 {
		return fmt.Errorf("%w: zero with exponent %d", ErrMalformedRecord, r.Exp)
	}
	if r.Exp > maxLimbExp || r.Exp < -maxLimbExp {
		return fmt.Errorf("%w: exponent %d out of range", ErrMalformedRecord, r.Exp)
	}
	return nil
}

// MarshalHeader encodes the fixed part of r.
func (r Record) MarshalHeader() []byte {
	var buf bytes.Buffer
	h := header{Version: RecordVersion, Prec: r.Prec, LimbCount: r.LimbCount, Exp: r.Exp}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		panic("bigfloat: " + err.Error())
	}
	return buf.Bytes()
}

// UnmarshalHeader decodes a header produced by MarshalHeader. The returned
// record has no limbs yet; pass the payload to UnmarshalPayload.
func UnmarshalHeader(b []byte) (Record, error) {
	if len(b) != HeaderSize {
		return Record{}, fmt.Errorf("%w: header is %d bytes, want %d", ErrMalformedRecord, len(b), HeaderSize)
	}
	var h header
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &h); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if h.Version != RecordVersion {
		return Record{}, fmt.Errorf("%w: version %d, want %d", ErrMalformedRecord, h.Version, RecordVersion)
	}
	r := Record{Prec: h.Prec, LimbCount: h.LimbCount, Exp: h.Exp}
	if err := r.validateHeader(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// MarshalPayload encodes the limbs of r.
func (r Record) MarshalPayload() []byte {
	buf := make([]byte, len(r.Limbs)*8)
	for i, l := range r.Limbs {
		binary.LittleEndian.PutUint64(buf[i*8:], l)
	}
	return buf
}

// UnmarshalPayload reads exactly r.Len() limbs from b. A payload of any other
// length is rejected; it is never truncated or padded.
func (r *Record) UnmarshalPayload(b []byte) error {
	n := r.Len()
	if len(b) != n*8 {
		return fmt.Errorf("%w: header declares %d limbs (%d bytes), payload has %d bytes",
			ErrMalformedRecord, n, n*8, len(b))
	}
	limbs := make([]uint64, n)
	for i := range limbs {
		limbs[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	r.Limbs = limbs
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler as header followed by
// payload.
func (r Record) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return append(r.MarshalHeader(), r.MarshalPayload()...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedRecord, len(b))
	}
	rec, err := UnmarshalHeader(b[:HeaderSize])
	if err != nil {
		return err
	}
	if err := rec.UnmarshalPayload(b[HeaderSize:]); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	*r = rec
	return nil
}

func ceilDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}

func toLimbs(z *big.Int, n int) []uint64 {
	buf := z.FillBytes(make([]byte, n*8))
	limbs := make([]uint64, n)
	for i := range limbs {
		limbs[i] = binary.BigEndian.Uint64(buf[(n-1-i)*8:])
	}
	return limbs
}

func fromLimbs(limbs []uint64) *big.Int {
	n := len(limbs)
	buf := make([]byte, n*8)
	for i, l := range limbs {
		binary.BigEndian.PutUint64(buf[(n-1-i)*8:], l)
	}
	return new(big.Int).SetBytes(buf)
}
