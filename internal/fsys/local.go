package fsys

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalFileSystem serves absolute paths and file:// URIs.
type LocalFileSystem struct{}

func NewLocalFileSystem(context.Context, Config) (FileSystem, error) {
	return &LocalFileSystem{}, nil
}

func localPath(loc string) string {
	return strings.TrimPrefix(loc, "file://")
}

func (l *LocalFileSystem) Create(_ context.Context, loc string) (io.WriteCloser, error) {
	p := localPath(loc)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, mapOSError(err)
	}
	return f, nil
}

func (l *LocalFileSystem) Open(_ context.Context, loc string) (io.ReadCloser, error) {
	f, err := os.Open(localPath(loc))
	if err != nil {
		return nil, mapOSError(err)
	}
	return f, nil
}

func (l *LocalFileSystem) Exists(_ context.Context, loc string) (bool, error) {
	_, err := os.Stat(localPath(loc))
	if err != nil && os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *LocalFileSystem) Rename(_ context.Context, src, dst string) error {
	to := localPath(dst)
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return mapOSError(renameNoReplace(localPath(src), to))
}

func (l *LocalFileSystem) Delete(_ context.Context, loc string) error {
	p := localPath(loc)
	if _, err := os.Lstat(p); err != nil {
		return mapOSError(err)
	}
	return os.RemoveAll(p)
}

func (l *LocalFileSystem) List(_ context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(localPath(dir))
	if err != nil {
		return nil, mapOSError(err)
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := prefix + e.Name()
		if e.IsDir() {
			name += "/"
		}
		out = append(out, name)
	}
	return out, nil
}

// linkRename emulates a no-replace rename with link(2), which refuses to
// overwrite dst, followed by unlinking src.
func linkRename(src, dst string) error {
	if err := os.Link(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func init() {
	Register("file", NewLocalFileSystem)
}
