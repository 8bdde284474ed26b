package sink

import (
	"sync/atomic"
	"time"
)

// commitOutcome classifies what a committer call did with its temp file.
type commitOutcome int

const (
	outcomeCommitted commitOutcome = iota
	// The temp file was already gone: an earlier attempt committed it.
	outcomeNoop
	// The canonical file appeared first; this attempt's output was dropped.
	outcomeLostRace
	outcomeCleanupFailed
)

// Metrics counts sink activity. The zero value is ready to use and safe for
// concurrent writers and committers.
type Metrics struct {
	bundlesStarted   atomic.Int64
	tempFilesWritten atomic.Int64
	writeTime        atomic.Int64 // nanoseconds
	outcomes         [outcomeCleanupFailed + 1]atomic.Int64
}

type MetricsSnapshot struct {
	BundlesStarted   int64
	TempFilesWritten int64
	Commits          int64
	NoopCommits      int64
	LostRaces        int64
	CleanupFailures  int64
	WriteTime        time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		BundlesStarted:   m.bundlesStarted.Load(),
		TempFilesWritten: m.tempFilesWritten.Load(),
		// A lost race still finishes the commit for its partition.
		Commits:         m.outcomes[outcomeCommitted].Load() + m.outcomes[outcomeLostRace].Load(),
		NoopCommits:     m.outcomes[outcomeNoop].Load(),
		LostRaces:       m.outcomes[outcomeLostRace].Load(),
		CleanupFailures: m.outcomes[outcomeCleanupFailed].Load(),
		WriteTime:       time.Duration(m.writeTime.Load()),
	}
}

func (m *Metrics) tempFileWritten(took time.Duration) {
	m.tempFilesWritten.Add(1)
	m.writeTime.Add(int64(took))
}

func (m *Metrics) record(o commitOutcome) {
	m.outcomes[o].Add(1)
}
