package sink

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetrics_Snapshot(t *testing.T) {
	var m Metrics
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.bundlesStarted.Add(1)
			m.tempFileWritten(time.Millisecond)
			m.record(outcomeCommitted)
			m.record(outcomeLostRace)
			m.record(outcomeNoop)
		}()
	}
	wg.Wait()
	m.record(outcomeCleanupFailed)

	require.Equal(t, MetricsSnapshot{
		BundlesStarted:   10,
		TempFilesWritten: 10,
		Commits:          20,
		NoopCommits:      10,
		LostRaces:        10,
		CleanupFailures:  1,
		WriteTime:        10 * time.Millisecond,
	}, m.Snapshot())
}
