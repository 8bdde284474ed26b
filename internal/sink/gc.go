package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zendesk/clj-headlights/internal/fsys"
)

// GCReport summarizes a CollectGarbage pass.
type GCReport struct {
	Partitions int
	Removed    []string
	Kept       []string
}

// CollectGarbage removes leftover temp directories under the base path. By
// default only partitions that already have a canonical file are cleaned,
// since a temp directory without one may belong to an attempt still in
// flight. force removes every temp directory.
func (s *PartitionedFileSink) CollectGarbage(ctx context.Context, force bool) (GCReport, error) {
	var report GCReport
	children, err := s.fs.List(ctx, s.basePath)
	if errors.Is(err, fsys.ErrNotFound) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("list %s: %w", s.basePath, err)
	}

	for _, child := range children {
		if !strings.HasSuffix(child, "/") {
			continue
		}
		report.Partitions++
		key := fsys.Base(child)
		tempDir := s.TempDir(key)

		hasTemp, err := s.fs.Exists(ctx, tempDir)
		if err != nil {
			return report, fmt.Errorf("check %s: %w", tempDir, err)
		}
		if !hasTemp {
			continue
		}
		if !force {
			committed, err := s.Committed(ctx, key)
			if err != nil {
				return report, fmt.Errorf("check %s: %w", s.CanonicalLocation(key), err)
			}
			if !committed {
				report.Kept = append(report.Kept, tempDir)
				continue
			}
		}
		if err := s.fs.Delete(ctx, tempDir, fsys.IgnoreMissingFiles); err != nil {
			return report, fmt.Errorf("delete %s: %w", tempDir, err)
		}
		s.logger.Printf("removed %s", tempDir)
		report.Removed = append(report.Removed, tempDir)
	}
	return report, nil
}
