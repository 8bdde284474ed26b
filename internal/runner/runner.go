// Package runner is a small local execution engine for the sink. It groups
// records into bundles, runs the write and commit stages on a worker pool,
// and retries failed attempts, optionally racing a duplicate of every write.
package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zendesk/clj-headlights/internal/codec"
	"github.com/zendesk/clj-headlights/internal/pardo"
	"github.com/zendesk/clj-headlights/internal/sink"
)

type Options struct {
	// BundleSize is the number of partitions per bundle.
	BundleSize     int           `mapstructure:"bundle_size"`
	Parallelism    int           `mapstructure:"parallelism"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Speculative    bool          `mapstructure:"speculative"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

func DefaultOptions() Options {
	return Options{
		BundleSize:     16,
		Parallelism:    4,
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BundleSize <= 0 {
		o.BundleSize = d.BundleSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	return o
}

type Runner struct {
	Sink       *sink.PartitionedFileSink
	Transforms []*pardo.DoFn
	Options    Options
	Logger     *log.Logger

	attempts int64
}

func New(s *sink.PartitionedFileSink, transforms []*pardo.DoFn, opts Options, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Runner{
		Sink:       s,
		Transforms: transforms,
		Options:    opts.withDefaults(),
		Logger:     logger,
	}
}

type Result struct {
	Partitions int
	Bundles    int
	Attempts   int64
	// Committed lists every partition key with a canonical file, sorted.
	Committed []string
}

// Run pushes records through the transforms and the sink. It returns an error
// if any bundle still fails after MaxAttempts; partitions committed before
// that stay committed and a later Run will skip straight past them.
func (r *Runner) Run(ctx context.Context, records []codec.Record) (Result, error) {
	pool, err := newTaskPool(r.Options.Parallelism)
	if err != nil {
		return Result{}, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()
	atomic.StoreInt64(&r.attempts, 0)

	if err := r.setup(ctx, pool); err != nil {
		return Result{}, err
	}
	transformed, err := pardo.Chain(ctx, r.Transforms, records)
	if err != nil {
		return Result{}, err
	}

	bundles := Bundle(transformed, r.Options.BundleSize)
	res := Result{Bundles: len(bundles)}
	for _, b := range bundles {
		res.Partitions += len(b)
	}

	temps, err := r.writeStage(ctx, pool, bundles)
	if err != nil {
		res.Attempts = atomic.LoadInt64(&r.attempts)
		return res, err
	}
	committed, err := r.commitStage(ctx, pool, temps)
	res.Attempts = atomic.LoadInt64(&r.attempts)
	res.Committed = committed
	return res, err
}

// setup prepares every transform concurrently; module loading is serialized
// by the pardo registry.
func (r *Runner) setup(ctx context.Context, pool *taskPool) error {
	futures := make([]*future[struct{}], 0, len(r.Transforms))
	for _, fn := range r.Transforms {
		fn := fn
		futures = append(futures, submit(pool, func() (struct{}, error) {
			return struct{}{}, fn.Setup(ctx)
		}))
	}
	for i, f := range futures {
		if _, err := f.Get(); err != nil {
			return fmt.Errorf("setup %s: %w", r.Transforms[i].Name(), err)
		}
	}
	return nil
}

func (r *Runner) writeStage(ctx context.Context, pool *taskPool, bundles [][]sink.Record) ([]sink.TempFile, error) {
	writer := r.Sink.Writer()
	attempt := func(i int, bundle []sink.Record) func() ([]sink.TempFile, error) {
		return func() ([]sink.TempFile, error) {
			var temps []sink.TempFile
			err := r.retry(ctx, fmt.Sprintf("bundle %d", i), func() error {
				atomic.AddInt64(&r.attempts, 1)
				var err error
				temps, err = writer.ProcessBundle(ctx, bundle)
				return err
			})
			return temps, err
		}
	}

	var primaries, duplicates []*future[[]sink.TempFile]
	for i, b := range bundles {
		primaries = append(primaries, submit(pool, attempt(i, b)))
		if r.Options.Speculative {
			duplicates = append(duplicates, submit(pool, attempt(i, b)))
		}
	}

	var all []sink.TempFile
	var firstErr error
	for i, f := range primaries {
		temps, err := f.Get()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("bundle %d: %w", i, err)
		}
		all = append(all, temps...)
	}
	// Duplicates are committed too; the committer sorts out which attempt
	// wins each partition.
	for i, f := range duplicates {
		temps, err := f.Get()
		if err != nil {
			r.Logger.Printf("speculative attempt of bundle %d failed: %v", i, err)
			continue
		}
		all = append(all, temps...)
	}
	return all, firstErr
}

func (r *Runner) commitStage(ctx context.Context, pool *taskPool, temps []sink.TempFile) ([]string, error) {
	committer := r.Sink.Committer()
	futures := make([]*future[string], 0, len(temps))
	for _, tf := range temps {
		tf := tf
		futures = append(futures, submit(pool, func() (string, error) {
			var key string
			err := r.retry(ctx, "commit "+tf.Location, func() error {
				k, ok, err := committer.ProcessElement(ctx, tf)
				if ok {
					key = k
				}
				return err
			})
			return key, err
		}))
	}

	var firstErr error
	seen := map[string]bool{}
	for _, f := range futures {
		key, err := f.Get()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if key != "" {
			seen[key] = true
		}
	}

	// A temp file that was already gone tells us nothing about this run, so
	// ask the filesystem which partitions are actually done.
	for _, tf := range temps {
		if seen[tf.Key] {
			continue
		}
		ok, err := r.Sink.Committed(ctx, tf.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			seen[tf.Key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, firstErr
}

func (r *Runner) retry(ctx context.Context, what string, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.Options.InitialBackoff
	eb.MaxInterval = r.Options.MaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.Options.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		r.Logger.Printf("%s failed, retrying in %s: %v", what, d, err)
	})
}

// Bundle groups records by key, keeping the order in which keys first
// appear, and slices the partitions into bundles of at most size.
func Bundle(records []codec.Record, size int) [][]sink.Record {
	if size <= 0 {
		size = 1
	}
	index := map[string]int{}
	var parts []sink.Record
	for _, rec := range records {
		i, ok := index[rec.Key]
		if !ok {
			i = len(parts)
			index[rec.Key] = i
			parts = append(parts, sink.Record{Key: rec.Key})
		}
		parts[i].Lines = append(parts[i].Lines, rec.Value)
	}

	var bundles [][]sink.Record
	for start := 0; start < len(parts); start += size {
		end := start + size
		if end > len(parts) {
			end = len(parts)
		}
		bundles = append(bundles, parts[start:end])
	}
	return bundles
}
