package compression

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zendesk/clj-headlights/internal/testutil"
)

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"gzip", "bzip2", "zstd", "none"} {
		t.Run(name, func(t *testing.T) {
			var buf testutil.WriteCloserBuffer
			w, err := NewWriter(&buf, name)
			require.NoError(t, err)

			original := "a\nb\nc\n"
			_, err = w.Write([]byte(original))
			require.NoError(t, err)
			require.NoError(t, w.Close())
			require.False(t, buf.Closed, "NewWriter must not close the underlying writer")

			r, err := NewReader(&buf, name)
			require.NoError(t, err)
			out, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			require.Equal(t, original, string(out))
		})
	}
}

func TestNone_IsPassthrough(t *testing.T) {
	var buf testutil.WriteCloserBuffer
	w, err := NewWriter(&buf, "")
	require.NoError(t, err)
	_, err = w.Write([]byte("plain text passthrough"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, "plain text passthrough", buf.String())
}

func TestWrap_ClosesUnderlying(t *testing.T) {
	var buf testutil.WriteCloserBuffer
	w, err := Wrap(&buf, "gzip")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.True(t, buf.Closed)
}

func TestUnsupported(t *testing.T) {
	var buf testutil.WriteCloserBuffer
	_, err := NewWriter(&buf, "lzma")
	require.Error(t, err)
	_, err = NewReader(&buf, "lzma")
	require.Error(t, err)
	require.Error(t, Validate("lzma"))
	require.NoError(t, Validate("zstd"))
}

func TestFromExtension(t *testing.T) {
	require.Equal(t, "gzip", FromExtension("records.jsonl.gz"))
	require.Equal(t, "bzip2", FromExtension("records.cbor.bz2"))
	require.Equal(t, "zstd", FromExtension("part.txt.zst"))
	require.Equal(t, "none", FromExtension("part.txt"))
	require.Equal(t, "records.jsonl", TrimExtension("records.jsonl.gz"))
	require.Equal(t, "part.txt", TrimExtension("part.txt"))
}
