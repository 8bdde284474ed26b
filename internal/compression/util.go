package compression

import "io"

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

// cascadeWriteCloser closes the compressor first so its trailer is flushed
// into the underlying writer before that is closed.
type cascadeWriteCloser struct {
	compressor io.WriteCloser
	underlying io.Closer
}

func (c *cascadeWriteCloser) Write(p []byte) (int, error) {
	return c.compressor.Write(p)
}

func (c *cascadeWriteCloser) Close() error {
	err1 := c.compressor.Close()
	err2 := c.underlying.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
