package compression

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
)

// NewWriter returns an io.WriteCloser that wraps w with the requested compression.
// Closing it flushes the compressor but leaves w open.
// Supported: "gzip", "bzip2", "zstd", or "" / "none" (no compression).
func NewWriter(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case "gzip":
		return gzip.NewWriter(w), nil
	case "bzip2":
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	case "zstd":
		return zstd.NewWriter(w)
	case "", "none":
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}

// Wrap is like NewWriter but closing the result also closes w.
func Wrap(w io.WriteCloser, compression string) (io.WriteCloser, error) {
	c, err := NewWriter(w, compression)
	if err != nil {
		return nil, err
	}
	return &cascadeWriteCloser{compressor: c, underlying: w}, nil
}

// NewReader returns a reader that decompresses r.
func NewReader(r io.Reader, compression string) (io.ReadCloser, error) {
	switch compression {
	case "gzip":
		return gzip.NewReader(r)
	case "bzip2":
		return bzip2.NewReader(r, nil)
	case "zstd":
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case "", "none":
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}

// Validate reports an error for compression names NewWriter does not accept.
func Validate(compression string) error {
	switch compression {
	case "gzip", "bzip2", "zstd", "", "none":
		return nil
	}
	return fmt.Errorf("unsupported compression: %s", compression)
}

// FromExtension guesses the compression of a file from its name.
func FromExtension(name string) string {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return "gzip"
	case strings.HasSuffix(name, ".bz2"):
		return "bzip2"
	case strings.HasSuffix(name, ".zst"):
		return "zstd"
	}
	return "none"
}

// TrimExtension strips a known compression suffix from name.
func TrimExtension(name string) string {
	for _, ext := range []string{".gz", ".bz2", ".zst"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
