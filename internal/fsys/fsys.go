// Package fsys is a small filesystem abstraction over local disks and object
// stores, addressed by location strings such as "/data/out", "s3://bucket/out"
// or "az://container/out".
//
// Back ends are registered per URI scheme and constructed lazily, once per
// Registry, the first time a location with that scheme is used.
package fsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNotFound reports that the addressed file or directory does not exist.
	ErrNotFound = errors.New("fsys: not found")
	// ErrExist reports that a create or rename target already exists.
	ErrExist = errors.New("fsys: already exists")
	// ErrUnknownScheme is returned for locations whose scheme has no back end.
	ErrUnknownScheme = errors.New("fsys: unknown scheme")
)

// FileSystem is implemented by every storage back end. Locations passed in
// always carry the back end's own scheme. A location ending in "/" names a
// directory (or an object-store prefix).
type FileSystem interface {
	// Create opens a new file for writing. It fails with ErrExist rather
	// than truncate an existing file. Missing parent directories are created.
	Create(ctx context.Context, loc string) (io.WriteCloser, error)
	Open(ctx context.Context, loc string) (io.ReadCloser, error)
	Exists(ctx context.Context, loc string) (bool, error)
	// Rename moves src to dst without replacing an existing dst. It fails
	// with ErrNotFound if src is gone and ErrExist if dst is present.
	Rename(ctx context.Context, src, dst string) error
	// Delete removes a file, or a directory and everything under it.
	// Deleting something that does not exist fails with ErrNotFound.
	Delete(ctx context.Context, loc string) error
	// List returns the immediate children of a directory as full locations.
	// Subdirectories end in "/".
	List(ctx context.Context, dir string) ([]string, error)
}

// Factory constructs a back end from configuration.
type Factory func(ctx context.Context, cfg Config) (FileSystem, error)

// MoveOption tweaks Rename and Delete.
type MoveOption int

const (
	// IgnoreMissingFiles turns ErrNotFound into success.
	IgnoreMissingFiles MoveOption = iota + 1
)

func ignoreMissing(opts []MoveOption) bool {
	for _, o := range opts {
		if o == IgnoreMissingFiles {
			return true
		}
	}
	return false
}

// Scheme returns the URI scheme of loc. Absolute local paths have scheme "file".
func Scheme(loc string) (string, error) {
	if strings.HasPrefix(loc, "/") {
		return "file", nil
	}
	i := strings.Index(loc, "://")
	if i <= 0 {
		return "", fmt.Errorf("%w: %q is neither an absolute path nor a URI", ErrUnknownScheme, loc)
	}
	return loc[:i], nil
}

// splitRemote breaks "scheme://authority/path" into authority and path
// without its leading slash.
func splitRemote(loc, scheme string) (authority, path string, err error) {
	rest, ok := strings.CutPrefix(loc, scheme+"://")
	if !ok {
		return "", "", fmt.Errorf("location %q does not use scheme %s", loc, scheme)
	}
	authority, path, _ = strings.Cut(rest, "/")
	if authority == "" {
		return "", "", fmt.Errorf("location %q has no bucket, container or host", loc)
	}
	return authority, path, nil
}

// Parent returns the directory location containing loc, with a trailing "/".
func Parent(loc string) string {
	trimmed := strings.TrimSuffix(loc, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return ""
	}
	return trimmed[:i+1]
}

// Base returns the last element of loc, without any trailing "/".
func Base(loc string) string {
	trimmed := strings.TrimSuffix(loc, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

// Package-level helpers operate on the default registry.

func Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	return Default().Create(ctx, loc)
}

func Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	return Default().Open(ctx, loc)
}

func Exists(ctx context.Context, loc string) (bool, error) {
	return Default().Exists(ctx, loc)
}

func Rename(ctx context.Context, src, dst string, opts ...MoveOption) error {
	return Default().Rename(ctx, src, dst, opts...)
}

func Delete(ctx context.Context, loc string, opts ...MoveOption) error {
	return Default().Delete(ctx, loc, opts...)
}

func List(ctx context.Context, dir string) ([]string, error) {
	return Default().List(ctx, dir)
}
