// Package codec reads and writes the keyed records fed into the sink.
package codec

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/zendesk/clj-headlights/internal/compression"
)

var ErrMissingKey = errors.New("record has no key")

// Record is one line of text bound for the partition named by Key.
type Record struct {
	Key   string `json:"key" cbor:"key"`
	Value string `json:"value" cbor:"value"`
}

type Decoder interface {
	// Decode returns io.EOF once the input is exhausted.
	Decode() (Record, error)
}

type Encoder interface {
	Encode(Record) error
}

type Format interface {
	NewDecoder(r io.Reader) Decoder
	NewEncoder(w io.Writer) Encoder
}

var registry = make(map[string]Format)

func Register(name string, f Format) {
	registry[name] = f
}

func ForName(name string) (Format, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("format not found: %s", name)
	}
	return f, nil
}

func RegisteredFormats() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatFromPath guesses the format from a file name, ignoring any
// compression suffix. Unknown extensions default to "jsonl".
func FormatFromPath(path string) string {
	name := compression.TrimExtension(path)
	switch {
	case strings.HasSuffix(name, ".cbor"):
		return "cbor"
	default:
		return "jsonl"
	}
}

// ReadAll decodes every record in r.
func ReadAll(r io.Reader, format string) ([]Record, error) {
	f, err := ForName(format)
	if err != nil {
		return nil, err
	}
	dec := f.NewDecoder(r)
	var out []Record
	for n := 1; ; n++ {
		rec, err := dec.Decode()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		if rec.Key == "" {
			return nil, fmt.Errorf("record %d: %w", n, ErrMissingKey)
		}
		out = append(out, rec)
	}
}
