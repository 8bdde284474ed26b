package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CBORFormat reads and writes a sequence of CBOR maps (RFC 8742).
type CBORFormat struct{}

func (CBORFormat) NewDecoder(r io.Reader) Decoder {
	return cborDecoder{cbor.NewDecoder(r)}
}

func (CBORFormat) NewEncoder(w io.Writer) Encoder {
	return cborEncoder{cbor.NewEncoder(w)}
}

type cborDecoder struct{ dec *cbor.Decoder }

func (d cborDecoder) Decode() (Record, error) {
	var rec Record
	err := d.dec.Decode(&rec)
	return rec, err
}

type cborEncoder struct{ enc *cbor.Encoder }

func (e cborEncoder) Encode(rec Record) error { return e.enc.Encode(rec) }

func init() {
	Register("cbor", CBORFormat{})
}
