package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zendesk/clj-headlights/internal/testutil"
)

func TestCollectGarbage(t *testing.T) {
	s, dir := newTestSink(t, "part.txt")
	ctx := context.Background()

	testutil.WriteFile(t, dir, "done/part.txt", "a\n")
	testutil.WriteFile(t, dir, "done/temp/orphan", "a\n")
	testutil.WriteFile(t, dir, "pending/temp/inflight", "b\n")
	testutil.WriteFile(t, dir, "clean/part.txt", "c\n")
	testutil.WriteFile(t, dir, "stray.txt", "not a partition")

	report, err := s.CollectGarbage(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 3, report.Partitions)
	require.Equal(t, []string{s.TempDir("done")}, report.Removed)
	require.Equal(t, []string{s.TempDir("pending")}, report.Kept)

	report, err = s.CollectGarbage(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{s.TempDir("pending")}, report.Removed)

	require.Equal(t, map[string]string{
		"done/part.txt":  "a\n",
		"clean/part.txt": "c\n",
		"stray.txt":      "not a partition",
	}, testutil.ReadTree(t, dir))
}

func TestCollectGarbage_MissingBase(t *testing.T) {
	s, _ := newTestSink(t, "part.txt")
	s.basePath = s.basePath + "never-written/"
	report, err := s.CollectGarbage(context.Background(), false)
	require.NoError(t, err)
	require.Zero(t, report.Partitions)
}
