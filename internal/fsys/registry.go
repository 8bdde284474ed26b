package fsys

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/zendesk/clj-headlights/internal/initonce"
)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a back end available for scheme in every Registry.
func Register(scheme string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[scheme] = f
}

// RegisteredSchemes lists every scheme with a registered back end, sorted.
func RegisteredSchemes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	keys := make([]string, 0, len(factories))
	for k := range factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func factoryFor(scheme string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[scheme]
	return f, ok
}

// Config carries back-end settings; zero values mean SDK defaults.
type Config struct {
	S3    S3Config    `mapstructure:"s3"`
	GCS   S3Config    `mapstructure:"gcs"`
	Azure AzureConfig `mapstructure:"azure"`
	FTP   FTPConfig   `mapstructure:"ftp"`
}

// Registry resolves locations to back ends, constructing each back end at
// most once through an initialization barrier.
type Registry struct {
	cfg    Config
	logger *log.Logger

	mu        sync.RWMutex
	instances map[string]FileSystem

	barrier *initonce.Barrier
}

func NewRegistry(cfg Config, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Registry{
		cfg:       cfg,
		logger:    logger,
		instances: make(map[string]FileSystem),
	}
	r.barrier = initonce.New(r.load, initonce.WithHooks(initonce.Hooks{
		BeforeLoad: func(scheme string) {
			r.logger.Printf("initializing %s filesystem", scheme)
		},
		AfterLoad: func(scheme string, loaded []string, err error) {
			if err != nil {
				r.logger.Printf("initializing %s filesystem failed: %v", scheme, err)
				return
			}
			r.logger.Printf("filesystems ready: %v", loaded)
		},
	}))
	return r
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Configure replaces the default registry. Back ends already constructed by
// the previous default are dropped.
func Configure(cfg Config, logger *log.Logger) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = NewRegistry(cfg, logger)
	return defaultRegistry
}

// Default returns the process-wide registry, creating an unconfigured one on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(Config{}, nil)
	}
	return defaultRegistry
}

// Use installs fs as the back end for scheme, bypassing its factory.
func (r *Registry) Use(scheme string, fs FileSystem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[scheme] = fs
}

// Schemes lists the schemes this registry can serve: registered factories
// plus anything installed with Use.
func (r *Registry) Schemes() []string {
	set := map[string]struct{}{}
	for _, s := range RegisteredSchemes() {
		set[s] = struct{}{}
	}
	r.mu.RLock()
	for s := range r.instances {
		set[s] = struct{}{}
	}
	r.mu.RUnlock()
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Loaded lists the schemes whose back ends have been constructed.
func (r *Registry) Loaded() []string {
	return r.barrier.Loaded()
}

func (r *Registry) load(ctx context.Context, scheme string) ([]string, error) {
	r.mu.RLock()
	_, have := r.instances[scheme]
	r.mu.RUnlock()
	if !have {
		f, ok := factoryFor(scheme)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
		}
		fs, err := f(ctx, r.cfg)
		if err != nil {
			return nil, fmt.Errorf("init %s filesystem: %w", scheme, err)
		}
		r.mu.Lock()
		r.instances[scheme] = fs
		r.mu.Unlock()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	loaded := make([]string, 0, len(r.instances))
	for s := range r.instances {
		loaded = append(loaded, s)
	}
	return loaded, nil
}

// ForScheme returns the back end for scheme, constructing it if needed.
func (r *Registry) ForScheme(ctx context.Context, scheme string) (FileSystem, error) {
	r.mu.RLock()
	fs, ok := r.instances[scheme]
	r.mu.RUnlock()
	if ok {
		return fs, nil
	}
	if _, known := factoryFor(scheme); !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	if err := r.barrier.Ensure(ctx, scheme); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[scheme], nil
}

// ForLocation returns the back end serving loc.
func (r *Registry) ForLocation(ctx context.Context, loc string) (FileSystem, error) {
	scheme, err := Scheme(loc)
	if err != nil {
		return nil, err
	}
	return r.ForScheme(ctx, scheme)
}

func (r *Registry) Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	fs, err := r.ForLocation(ctx, loc)
	if err != nil {
		return nil, err
	}
	return fs.Create(ctx, loc)
}

func (r *Registry) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	fs, err := r.ForLocation(ctx, loc)
	if err != nil {
		return nil, err
	}
	return fs.Open(ctx, loc)
}

func (r *Registry) Exists(ctx context.Context, loc string) (bool, error) {
	fs, err := r.ForLocation(ctx, loc)
	if err != nil {
		return false, err
	}
	return fs.Exists(ctx, loc)
}

// Rename moves src to dst. Both must live on the same back end.
func (r *Registry) Rename(ctx context.Context, src, dst string, opts ...MoveOption) error {
	srcScheme, err := Scheme(src)
	if err != nil {
		return err
	}
	dstScheme, err := Scheme(dst)
	if err != nil {
		return err
	}
	if srcScheme != dstScheme {
		return fmt.Errorf("rename across filesystems: %s -> %s", src, dst)
	}
	fs, err := r.ForScheme(ctx, srcScheme)
	if err != nil {
		return err
	}
	err = fs.Rename(ctx, src, dst)
	if err != nil && ignoreMissing(opts) && isNotFound(err) {
		return nil
	}
	return err
}

func (r *Registry) Delete(ctx context.Context, loc string, opts ...MoveOption) error {
	fs, err := r.ForLocation(ctx, loc)
	if err != nil {
		return err
	}
	err = fs.Delete(ctx, loc)
	if err != nil && ignoreMissing(opts) && isNotFound(err) {
		return nil
	}
	return err
}

func (r *Registry) List(ctx context.Context, dir string) ([]string, error) {
	fs, err := r.ForLocation(ctx, dir)
	if err != nil {
		return nil, err
	}
	return fs.List(ctx, dir)
}
