package codec

import (
	"encoding/json"
	"io"
)

type JSONLFormat struct{}

func (JSONLFormat) NewDecoder(r io.Reader) Decoder {
	return jsonlDecoder{json.NewDecoder(r)}
}

func (JSONLFormat) NewEncoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return jsonlEncoder{enc}
}

type jsonlDecoder struct{ dec *json.Decoder }

func (d jsonlDecoder) Decode() (Record, error) {
	var rec Record
	err := d.dec.Decode(&rec)
	return rec, err
}

type jsonlEncoder struct{ enc *json.Encoder }

func (e jsonlEncoder) Encode(rec Record) error { return e.enc.Encode(rec) }

func init() {
	Register("jsonl", JSONLFormat{})
}
