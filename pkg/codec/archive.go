package codec

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"piscale/pkg/bigfloat"
)

// ErrNotArchive is returned when a file does not start with the archive magic.
var ErrNotArchive = errors.New("not a piscale archive")

var archiveMagic = [4]byte{'P', 'I', 'S', 'C'}

// maxMetaSize bounds the metadata block read from an archive.
const maxMetaSize = 1 << 20

// Result is a finished calculation as stored in an archive.
type Result struct {
	Algorithm    string    `msgpack:"algorithm"`
	SummandCount uint64    `msgpack:"summandCount"`
	Workers      int       `msgpack:"workers"`
	Created      time.Time `msgpack:"created"`

	// Value is stored after the metadata in the bigfloat wire layout.
	Value bigfloat.Record `msgpack:"-"`
}

// Float decodes the stored value.
func (r *Result) Float() (*bigfloat.Float, error) {
	return bigfloat.Decode(r.Value, uint(r.Value.Prec))
}

// WriteResult writes res to w as a gzip stream:
//
//	magic "PISC" | uint32 metadata length | msgpack metadata | bigfloat record
//
// Integers are little endian.
func WriteResult(w io.Writer, res *Result) error {
	meta, err := msgpack.Marshal(res)
	if err != nil {
		return fmt.Errorf("codec: encode metadata: %w", err)
	}
	value, err := res.Value.MarshalBinary()
	if err != nil {
		return fmt.Errorf("codec: encode value: %w", err)
	}

	gzw := gzip.NewWriter(w)
	if err := binary.Write(gzw, binary.LittleEndian, archiveMagic); err != nil {
		return err
	}
	if err := binary.Write(gzw, binary.LittleEndian, uint32(len(meta))); err != nil {
		return err
	}
	if _, err := gzw.Write(meta); err != nil {
		return err
	}
	if _, err := gzw.Write(value); err != nil {
		return err
	}
	return gzw.Close()
}

// ReadResult reads an archive written by WriteResult.
func ReadResult(r io.Reader) (*Result, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}
	defer gzr.Close()

	var magic [4]byte
	if err := binary.Read(gzr, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}
	if magic != archiveMagic {
		return nil, ErrNotArchive
	}
	var metaLen uint32
	if err := binary.Read(gzr, binary.LittleEndian, &metaLen); err != nil {
		return nil, fmt.Errorf("codec: read metadata length: %w", err)
	}
	if metaLen > maxMetaSize {
		return nil, fmt.Errorf("codec: metadata of %d bytes exceeds %d", metaLen, maxMetaSize)
	}
	meta := make([]byte, metaLen)
	if _, err := io.ReadFull(gzr, meta); err != nil {
		return nil, fmt.Errorf("codec: read metadata: %w", err)
	}
	var res Result
	if err := msgpack.Unmarshal(meta, &res); err != nil {
		return nil, fmt.Errorf("codec: decode metadata: %w", err)
	}
	value, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("codec: read value: %w", err)
	}
	if err := res.Value.UnmarshalBinary(value); err != nil {
		return nil, fmt.Errorf("codec: decode value: %w", err)
	}
	return &res, nil
}

// SaveResult writes res to filename, replacing any existing file.
func SaveResult(filename string, res *Result) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(file)
	if err := WriteResult(bw, res); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadResult reads the archive at filename.
func LoadResult(filename string) (*Result, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadResult(bufio.NewReader(file))
}
