// Package sink writes one file per partition key under a base path and makes
// that write safe to repeat.
//
// Work happens in two stages. The BundleWriter stages each partition's lines
// in a temp file unique to the bundle attempt:
//
//	<base><key>/temp/<bundle id>
//
// The BundleCommitter then renames the temp file to the canonical location
// and drops the partition's temp directory:
//
//	<base><key>/<filename>
//
// The rename never replaces an existing canonical file, and a missing temp
// file at commit time means an earlier attempt already committed the
// partition. Either stage may therefore be re-run any number of times, with
// the filesystem as the only record of what is done.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/zendesk/clj-headlights/internal/compression"
	"github.com/zendesk/clj-headlights/internal/fsys"
)

var (
	ErrInvalidBasePath = errors.New("invalid base path")
	ErrInvalidFilename = errors.New("invalid output filename")
)

// Record is all the lines destined for one partition within a bundle.
type Record struct {
	Key   string   `json:"key" cbor:"key"`
	Lines []string `json:"lines" cbor:"lines"`
}

// TempFile is handed from the writer to the committer.
type TempFile struct {
	Key      string `json:"key"`
	Location string `json:"location"`
}

type Option func(*PartitionedFileSink)

func WithLogger(l *log.Logger) Option {
	return func(s *PartitionedFileSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStrictPath makes construction fail on a malformed base path instead of
// only logging it.
func WithStrictPath() Option {
	return func(s *PartitionedFileSink) {
		s.strict = true
	}
}

// WithFileSystems resolves locations through r instead of fsys.Default().
func WithFileSystems(r *fsys.Registry) Option {
	return func(s *PartitionedFileSink) {
		if r != nil {
			s.fs = r
		}
	}
}

// WithCompression overrides the compression guessed from the filename.
func WithCompression(c string) Option {
	return func(s *PartitionedFileSink) {
		s.compression = c
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *PartitionedFileSink) {
		if m != nil {
			s.metrics = m
		}
	}
}

// PartitionedFileSink composes a BundleWriter and a BundleCommitter sharing
// one base path and filename.
type PartitionedFileSink struct {
	basePath    string
	filename    string
	compression string
	strict      bool

	fs      *fsys.Registry
	logger  *log.Logger
	metrics *Metrics
}

func NewPartitionedFileSink(basePath, filename string, opts ...Option) (*PartitionedFileSink, error) {
	s := &PartitionedFileSink{
		basePath:    basePath,
		filename:    filename,
		compression: compression.FromExtension(filename),
		logger:      log.New(os.Stderr, "[sink] ", log.LstdFlags),
		metrics:     &Metrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = fsys.Default()
	}

	if filename == "" || strings.Contains(filename, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	if err := compression.Validate(s.compression); err != nil {
		return nil, err
	}
	if err := validateBasePath(basePath, s.fs.Schemes()); err != nil {
		if s.strict {
			return nil, err
		}
		s.logger.Printf("ERROR: %v", err)
	}

	if !strings.HasSuffix(s.basePath, "/") {
		s.basePath += "/"
	}
	s.logger.Printf("Writing to: %s{{ key }}/%s", s.basePath, s.filename)
	return s, nil
}

func validateBasePath(basePath string, schemes []string) error {
	quoted := make([]string, 0, len(schemes))
	for _, s := range schemes {
		quoted = append(quoted, regexp.QuoteMeta(s))
	}
	pattern := `^/.+`
	if len(quoted) > 0 {
		pattern += `|^(` + strings.Join(quoted, "|") + `)://.+`
	}
	if !regexp.MustCompile(pattern).MatchString(basePath) {
		return fmt.Errorf("%w: %q must be an absolute path or a URI with one of the schemes %v",
			ErrInvalidBasePath, basePath, schemes)
	}
	return nil
}

// BasePath is the normalized base path, always ending in "/".
func (s *PartitionedFileSink) BasePath() string { return s.basePath }

func (s *PartitionedFileSink) Filename() string { return s.filename }

func (s *PartitionedFileSink) Metrics() *Metrics { return s.metrics }

// TempDir is the staging directory of a partition.
func (s *PartitionedFileSink) TempDir(key string) string {
	return s.basePath + key + "/temp/"
}

func (s *PartitionedFileSink) TempLocation(key, bundleID string) string {
	return s.TempDir(key) + bundleID
}

func (s *PartitionedFileSink) CanonicalLocation(key string) string {
	return s.basePath + key + "/" + s.filename
}

// Committed reports whether the canonical file for key exists.
func (s *PartitionedFileSink) Committed(ctx context.Context, key string) (bool, error) {
	return s.fs.Exists(ctx, s.CanonicalLocation(key))
}

func (s *PartitionedFileSink) Writer() *BundleWriter {
	return &BundleWriter{sink: s}
}

func (s *PartitionedFileSink) Committer() *BundleCommitter {
	return &BundleCommitter{sink: s}
}

// Apply writes records as a single bundle, then commits every temp file it
// produced. It returns the keys that were committed by this call.
func (s *PartitionedFileSink) Apply(ctx context.Context, records []Record) ([]string, error) {
	temps, err := s.Writer().ProcessBundle(ctx, records)
	if err != nil {
		return nil, err
	}
	committer := s.Committer()
	var keys []string
	for _, tf := range temps {
		key, ok, err := committer.ProcessElement(ctx, tf)
		if err != nil {
			return keys, err
		}
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
