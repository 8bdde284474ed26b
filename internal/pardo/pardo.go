// Package pardo applies named per-element functions to records.
//
// Functions live in modules. A module is set up the first time any of its
// functions is needed, after the modules it requires, and never again for
// the lifetime of its Registry, however many workers ask for it at once.
package pardo

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/zendesk/clj-headlights/internal/codec"
	"github.com/zendesk/clj-headlights/internal/initonce"
)

// Func handles one record, calling emit zero or more times.
type Func func(ctx context.Context, rec codec.Record, emit func(codec.Record)) error

type Module struct {
	Name     string
	Requires []string
	// Setup runs once before any of the module's functions are used.
	Setup func(ctx context.Context) error
	Funcs map[string]Func
}

type Registry struct {
	logger *log.Logger

	mu      sync.RWMutex
	modules map[string]Module
	// loaded is only written by the barrier's permit holder.
	loaded map[string]bool

	barrier *initonce.Barrier
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Registry{
		logger:  logger,
		modules: make(map[string]Module),
		loaded:  make(map[string]bool),
	}
	r.barrier = initonce.New(r.load, initonce.WithHooks(initonce.Hooks{
		BeforeLoad: func(name string) { r.logger.Printf("loading module %s", name) },
		AfterLoad: func(name string, loaded []string, err error) {
			if err != nil {
				r.logger.Printf("loading module %s failed: %v", name, err)
			}
		},
	}))
	return r
}

func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name] = m
}

func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Loaded lists the modules that have been set up.
func (r *Registry) Loaded() []string {
	return r.barrier.Loaded()
}

func (r *Registry) load(ctx context.Context, name string) ([]string, error) {
	if err := r.loadModule(ctx, name, map[string]bool{}); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(r.loaded))
	for n := range r.loaded {
		names = append(names, n)
	}
	return names, nil
}

func (r *Registry) loadModule(ctx context.Context, name string, visiting map[string]bool) error {
	if r.loaded[name] {
		return nil
	}
	if visiting[name] {
		return fmt.Errorf("dependency cycle through module %s", name)
	}
	visiting[name] = true

	r.mu.RLock()
	m, ok := r.modules[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("module not found: %s", name)
	}
	for _, dep := range m.Requires {
		if err := r.loadModule(ctx, dep, visiting); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if m.Setup != nil {
		if err := m.Setup(ctx); err != nil {
			return fmt.Errorf("setup %s: %w", name, err)
		}
	}
	r.loaded[name] = true
	return nil
}

// DoFn is a handle on one function, named "module/func".
type DoFn struct {
	reg    *Registry
	module string
	name   string
	fn     Func
}

func (r *Registry) NewDoFn(qualified string) (*DoFn, error) {
	module, name, ok := strings.Cut(qualified, "/")
	if !ok || module == "" || name == "" {
		return nil, fmt.Errorf("function name %q must look like module/func", qualified)
	}
	return &DoFn{reg: r, module: module, name: name}, nil
}

func (d *DoFn) Name() string { return d.module + "/" + d.name }

// Setup makes sure the function's module is loaded and resolves the function.
func (d *DoFn) Setup(ctx context.Context) error {
	if err := d.reg.barrier.Ensure(ctx, d.module); err != nil {
		return err
	}
	d.reg.mu.RLock()
	fn := d.reg.modules[d.module].Funcs[d.name]
	d.reg.mu.RUnlock()
	if fn == nil {
		return fmt.Errorf("module %s has no function %s", d.module, d.name)
	}
	d.fn = fn
	return nil
}

func (d *DoFn) ProcessElement(ctx context.Context, rec codec.Record, emit func(codec.Record)) error {
	if d.fn == nil {
		return fmt.Errorf("%s used before Setup", d.Name())
	}
	return d.fn(ctx, rec, emit)
}

// Chain feeds each record through fns in order.
func Chain(ctx context.Context, fns []*DoFn, records []codec.Record) ([]codec.Record, error) {
	cur := records
	for _, fn := range fns {
		var next []codec.Record
		emit := func(rec codec.Record) { next = append(next, rec) }
		for _, rec := range cur {
			if err := fn.ProcessElement(ctx, rec, emit); err != nil {
				return nil, fmt.Errorf("%s: %w", fn.Name(), err)
			}
		}
		cur = next
	}
	return cur, nil
}

var defaultRegistry = NewRegistry(nil)

// Register adds m to the default registry.
func Register(m Module) {
	defaultRegistry.Register(m)
}

func Default() *Registry {
	return defaultRegistry
}
