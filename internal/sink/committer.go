package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/zendesk/clj-headlights/internal/fsys"
)

// BundleCommitter promotes temp files to their partition's canonical location.
type BundleCommitter struct {
	sink *PartitionedFileSink
}

// ProcessElement commits tf. It returns committed=false, with no error, when
// the temp file is already gone: some earlier attempt has finished the
// partition. When another attempt won the rename, the canonical file is left
// alone and this attempt's temp files are discarded with the rest of the
// partition's temp directory.
func (c *BundleCommitter) ProcessElement(ctx context.Context, tf TempFile) (key string, committed bool, err error) {
	s := c.sink

	exists, err := s.fs.Exists(ctx, tf.Location)
	if err != nil {
		return "", false, fmt.Errorf("resolve temp file %s: %w", tf.Location, err)
	}
	if !exists {
		s.metrics.record(outcomeNoop)
		return "", false, nil
	}

	canonical := s.CanonicalLocation(tf.Key)
	s.logger.Printf("Moving %s to %s", tf.Location, canonical)
	err = s.fs.Rename(ctx, tf.Location, canonical, fsys.IgnoreMissingFiles)
	outcome := outcomeCommitted
	switch {
	case errors.Is(err, fsys.ErrExist):
		outcome = outcomeLostRace
		s.logger.Printf("%s already committed, discarding %s", canonical, tf.Location)
	case err != nil:
		return "", false, fmt.Errorf("commit %s: %w", tf.Location, err)
	}

	if err := s.fs.Delete(ctx, s.TempDir(tf.Key), fsys.IgnoreMissingFiles); err != nil {
		s.metrics.record(outcomeCleanupFailed)
		return "", false, fmt.Errorf("clean up %s: %w", s.TempDir(tf.Key), err)
	}
	s.metrics.record(outcome)
	return tf.Key, true, nil
}
