package testutil

import (
	"bytes"
	"io"
	"log"
	"os"
	"testing"
	"time"
)

// WriteCloserBuffer is a bytes.Buffer that records whether it was closed.
type WriteCloserBuffer struct {
	bytes.Buffer
	Closed bool
}

func (b *WriteCloserBuffer) Close() error {
	b.Closed = true
	return nil
}

// Utility: Wait for a condition or timeout
func WaitFor(t *testing.T, cond func() bool, timeout time.Duration, tick time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("WaitFor timeout: %s", msg)
}

// Helper for creating a test logger that discards or logs as needed
func NewTestLogger(discard bool) *log.Logger {
	if discard {
		return log.New(io.Discard, "[test] ", log.LstdFlags)
	}
	return log.New(os.Stdout, "[test] ", log.LstdFlags)
}
