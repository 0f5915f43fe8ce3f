// Package codec holds the encodings piscale uses outside the limb wire
// format: the run parameters root broadcasts (MessagePack) and the gzip'd
// archive a finished calculation can be saved to.
package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Params are the run parameters root broadcasts before the workers compute.
// Every worker adopts SummandCount from root verbatim.
type Params struct {
	Algorithm    string `msgpack:"algorithm"`
	Precision    uint   `msgpack:"precision"`
	SummandCount uint64 `msgpack:"summandCount"`
}

// EncodeParams encodes p with MessagePack.
func EncodeParams(p Params) ([]byte, error) {
	b, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("codec: encode params: %w", err)
	}
	return b, nil
}

// DecodeParams decodes parameters produced by EncodeParams.
func DecodeParams(b []byte) (Params, error) {
	var p Params
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Params{}, fmt.Errorf("codec: decode params: %w", err)
	}
	return p, nil
}
