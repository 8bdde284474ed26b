// Package initonce provides a process-wide barrier that lazily initializes
// named resources exactly once, no matter how many goroutines discover the
// need for them at the same time.
//
// A single permit guards every initialization. The goroutine holding it runs
// the Loader; every other caller waits until the holder finishes and then
// re-checks whether its resource became ready, either because it was the one
// being loaded or because the loader brought it in as a dependency.
//
// If a Loader never returns, the permit is never released and later callers
// for unloaded resources block until their context is cancelled. The barrier
// does not try to recover from that; the process is expected to be restarted.
package initonce

import (
	"context"
	"sort"
	"sync"
)

// Loader initializes id and returns the full set of ids that are known to be
// initialized afterwards, including id itself and anything loaded along the way.
type Loader func(ctx context.Context, id string) ([]string, error)

// Hooks are observability callbacks invoked by the permit holder.
type Hooks struct {
	BeforeLoad func(id string)
	AfterLoad  func(id string, loaded []string, err error)
}

type Option func(*Barrier)

// WithHooks installs before/after load callbacks.
func WithHooks(h Hooks) Option {
	return func(b *Barrier) {
		b.hooks = h
	}
}

// Barrier guarantees a Loader runs at most once per successfully loaded id.
type Barrier struct {
	loader Loader
	hooks  Hooks

	permit chan struct{}

	mu    sync.Mutex
	ready map[string]struct{}
	// retry is closed whenever the permit holder finishes an attempt, then
	// replaced, so every goroutine that observed the old channel wakes up.
	retry chan struct{}

	// releaseHook runs between freeing the permit and the broadcast. Tests only.
	releaseHook func()
}

func New(loader Loader, opts ...Option) *Barrier {
	b := &Barrier{
		loader: loader,
		permit: make(chan struct{}, 1),
		ready:  make(map[string]struct{}),
		retry:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ensure returns once id is initialized. Exactly one concurrent caller runs the
// loader; the rest block until it is done. A loader error is returned only to
// the caller that ran it; waiters wake up and one of them tries again.
func (b *Barrier) Ensure(ctx context.Context, id string) error {
	for {
		b.mu.Lock()
		if _, ok := b.ready[id]; ok {
			b.mu.Unlock()
			return nil
		}
		wait := b.retry
		b.mu.Unlock()

		select {
		case b.permit <- struct{}{}:
			return b.load(ctx, id)
		default:
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Barrier) load(ctx context.Context, id string) (err error) {
	var loaded []string
	defer b.release()

	// Another holder may have loaded id between our check and acquiring the permit.
	if b.Ready(id) {
		return nil
	}

	if b.hooks.BeforeLoad != nil {
		b.hooks.BeforeLoad(id)
	}
	loaded, err = b.loader(ctx, id)
	if err == nil {
		b.mu.Lock()
		for _, l := range loaded {
			b.ready[l] = struct{}{}
		}
		b.ready[id] = struct{}{}
		b.mu.Unlock()
	}
	if b.hooks.AfterLoad != nil {
		b.hooks.AfterLoad(id, loaded, err)
	}
	return err
}

// release frees the permit, then wakes the waiters. The order matters: a
// caller that reads the new retry channel must find the permit free.
func (b *Barrier) release() {
	<-b.permit
	if b.releaseHook != nil {
		b.releaseHook()
	}
	b.mu.Lock()
	close(b.retry)
	b.retry = make(chan struct{})
	b.mu.Unlock()
}

// Ready reports whether id has been initialized.
func (b *Barrier) Ready(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ready[id]
	return ok
}

// Loaded returns every initialized id in sorted order.
func (b *Barrier) Loaded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.ready))
	for id := range b.ready {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
