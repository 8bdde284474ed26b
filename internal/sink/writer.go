package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/zendesk/clj-headlights/internal/compression"
)

// BundleWriter stages partition lines in per-attempt temp files.
type BundleWriter struct {
	sink *PartitionedFileSink
}

// StartBundle begins a bundle attempt with a fresh bundle id. Call it once per
// attempt, before processing any of the attempt's records.
func (w *BundleWriter) StartBundle() *WriterBundle {
	w.sink.metrics.bundlesStarted.Add(1)
	return &WriterBundle{sink: w.sink, id: uuid.NewString()}
}

// ProcessBundle runs a whole bundle attempt and returns its temp files.
func (w *BundleWriter) ProcessBundle(ctx context.Context, records []Record) ([]TempFile, error) {
	b := w.StartBundle()
	temps := make([]TempFile, 0, len(records))
	for _, rec := range records {
		tf, err := b.ProcessElement(ctx, rec)
		if err != nil {
			return nil, err
		}
		temps = append(temps, tf)
	}
	return temps, nil
}

// WriterBundle is one bundle attempt.
type WriterBundle struct {
	sink *PartitionedFileSink
	id   string
}

func (b *WriterBundle) ID() string { return b.id }

// ProcessElement writes rec.Lines, each followed by "\n", to the bundle's
// temp file for rec.Key. Records must be grouped by key within a bundle; a
// second record for the same key fails because temp files are never
// overwritten.
func (b *WriterBundle) ProcessElement(ctx context.Context, rec Record) (TempFile, error) {
	start := time.Now()
	loc := b.sink.TempLocation(rec.Key, b.id)

	f, err := b.sink.fs.Create(ctx, loc)
	if err != nil {
		return TempFile{}, fmt.Errorf("create temp file %s: %w", loc, err)
	}
	w, err := compression.Wrap(f, b.sink.compression)
	if err != nil {
		f.Close()
		return TempFile{}, err
	}
	if err := writeLines(w, rec.Lines); err != nil {
		w.Close()
		return TempFile{}, fmt.Errorf("write temp file %s: %w", loc, err)
	}
	if err := w.Close(); err != nil {
		return TempFile{}, fmt.Errorf("close temp file %s: %w", loc, err)
	}

	b.sink.metrics.tempFileWritten(time.Since(start))
	return TempFile{Key: rec.Key, Location: loc}, nil
}

func writeLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
