package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zendesk/clj-headlights/internal/codec"
	"github.com/zendesk/clj-headlights/internal/fsys"
	"github.com/zendesk/clj-headlights/internal/pardo"
	"github.com/zendesk/clj-headlights/internal/sink"
	"github.com/zendesk/clj-headlights/internal/testutil"
)

// failingFS fails the first failFirst creates.
type failingFS struct {
	fsys.LocalFileSystem
	failFirst int64
}

func (f *failingFS) Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	if atomic.AddInt64(&f.failFirst, -1) >= 0 {
		return nil, errors.New("disk hiccup")
	}
	return f.LocalFileSystem.Create(ctx, loc)
}

func newSink(t *testing.T, fs fsys.FileSystem) (*sink.PartitionedFileSink, string) {
	t.Helper()
	reg := fsys.NewRegistry(fsys.Config{}, nil)
	if fs != nil {
		reg.Use("file", fs)
	}
	dir := t.TempDir()
	s, err := sink.NewPartitionedFileSink(dir, "part.txt",
		sink.WithFileSystems(reg),
		sink.WithLogger(testutil.NewTestLogger(true)),
		sink.WithStrictPath())
	require.NoError(t, err)
	return s, dir
}

func fastOptions() Options {
	return Options{
		BundleSize:     2,
		Parallelism:    4,
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func records(partitions, lines int) ([]codec.Record, map[string]string) {
	var recs []codec.Record
	want := map[string]string{}
	for l := 0; l < lines; l++ {
		for p := 0; p < partitions; p++ {
			key := fmt.Sprintf("p%02d", p)
			val := fmt.Sprintf("line-%d", l)
			recs = append(recs, codec.Record{Key: key, Value: val})
			want[key+"/part.txt"] += val + "\n"
		}
	}
	return recs, want
}

func TestBundle(t *testing.T) {
	bundles := Bundle([]codec.Record{
		{Key: "b", Value: "1"}, {Key: "a", Value: "2"}, {Key: "b", Value: "3"}, {Key: "c", Value: "4"},
	}, 2)
	require.Equal(t, [][]sink.Record{
		{{Key: "b", Lines: []string{"1", "3"}}, {Key: "a", Lines: []string{"2"}}},
		{{Key: "c", Lines: []string{"4"}}},
	}, bundles)
}

func TestRun_Simple(t *testing.T) {
	s, dir := newSink(t, nil)
	recs, want := records(5, 3)

	res, err := New(s, nil, fastOptions(), testutil.NewTestLogger(true)).Run(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, 5, res.Partitions)
	require.Equal(t, 3, res.Bundles)
	require.Equal(t, int64(3), res.Attempts)
	require.Len(t, res.Committed, 5)
	require.Equal(t, want, testutil.ReadTree(t, dir))
}

func TestRun_RetriesAndSpeculationStayIdempotent(t *testing.T) {
	s, dir := newSink(t, &failingFS{failFirst: 3})
	recs, want := records(9, 4)
	opts := fastOptions()
	opts.Speculative = true

	r := New(s, nil, opts, testutil.NewTestLogger(true))
	res, err := r.Run(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, 5, res.Bundles)
	require.Equal(t, int64(2*5+3), res.Attempts)
	require.Len(t, res.Committed, 9)
	require.Equal(t, want, testutil.ReadTree(t, dir))

	// Running the same input again changes nothing on disk.
	res, err = r.Run(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, res.Committed, 9)
	require.Equal(t, want, testutil.ReadTree(t, dir))
	require.Positive(t, s.Metrics().Snapshot().LostRaces)
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	s, _ := newSink(t, &failingFS{failFirst: 1 << 30})
	recs, _ := records(1, 1)
	opts := fastOptions()
	opts.MaxAttempts = 2

	res, err := New(s, nil, opts, nil).Run(context.Background(), recs)
	require.ErrorContains(t, err, "disk hiccup")
	require.Equal(t, int64(2), res.Attempts)
}

func TestRun_WithTransforms(t *testing.T) {
	s, dir := newSink(t, nil)
	var fns []*pardo.DoFn
	for _, name := range []string{"lines/trim", "lines/drop-empty", "strings/upper"} {
		fn, err := pardo.Default().NewDoFn(name)
		require.NoError(t, err)
		fns = append(fns, fn)
	}

	_, err := New(s, fns, fastOptions(), nil).Run(context.Background(), []codec.Record{
		{Key: "p1", Value: " a "}, {Key: "p1", Value: ""}, {Key: "p2", Value: "b"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"p1/part.txt": "A\n", "p2/part.txt": "B\n"}, testutil.ReadTree(t, dir))
}
