package fsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

type FTPConfig struct {
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

// FTPFileSystem serves ftp://host[:port]/path locations. A connection is
// opened per operation.
//
// FTP has no conditional rename, so Rename checks the destination first and
// two racing renames can both pass the check. Callers relying on no-replace
// semantics should prefer another back end.
type FTPFileSystem struct {
	User        string
	Password    string
	ConnTimeout time.Duration
}

func NewFTPFileSystem(_ context.Context, cfg Config) (FileSystem, error) {
	timeout := cfg.FTP.ConnTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	user := cfg.FTP.User
	if user == "" {
		user = "anonymous"
	}
	return &FTPFileSystem{User: user, Password: cfg.FTP.Password, ConnTimeout: timeout}, nil
}

func splitFTP(loc string) (addr, p string, err error) {
	host, rest, err := splitRemote(loc, "ftp")
	if err != nil {
		return "", "", err
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, "/" + rest, nil
}

func (fs *FTPFileSystem) connect(ctx context.Context, addr string) (*ftp.ServerConn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithTimeout(fs.ConnTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	if err = c.Login(fs.User, fs.Password); err != nil {
		c.Quit()
		return nil, err
	}
	return c, nil
}

func isFTPNotFound(err error) bool {
	var e *textproto.Error
	return errors.As(err, &e) && e.Code == ftp.StatusFileUnavailable
}

func mapFTPError(err error, loc string) error {
	if err == nil {
		return nil
	}
	if isFTPNotFound(err) {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, loc, err)
	}
	return fmt.Errorf("%s: %w", loc, err)
}

func fileExists(c *ftp.ServerConn, p string) (bool, error) {
	_, err := c.FileSize(p)
	if err == nil {
		return true, nil
	}
	if isFTPNotFound(err) {
		return false, nil
	}
	return false, err
}

// mkdirAll creates every missing directory on the way to dir. Errors are
// ignored since most servers reply 550 for directories that already exist.
func mkdirAll(c *ftp.ServerConn, dir string) {
	cur := ""
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		cur += "/" + part
		_ = c.MakeDir(cur)
	}
}

func (fs *FTPFileSystem) Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	addr, p, err := splitFTP(loc)
	if err != nil {
		return nil, err
	}
	c, err := fs.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	exists, err := fileExists(c, p)
	if err != nil {
		c.Quit()
		return nil, mapFTPError(err, loc)
	}
	if exists {
		c.Quit()
		return nil, alreadyExists(loc)
	}
	mkdirAll(c, path.Dir(p))

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := c.Stor(p, r)
		_ = r.CloseWithError(err)
		c.Quit()
		done <- err
	}()
	return &ftpWriter{PipeWriter: w, done: done, loc: loc}, nil
}

type ftpWriter struct {
	*io.PipeWriter
	done chan error
	loc  string
}

// Close finishes the upload and waits for the server to acknowledge it.
func (w *ftpWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return err
	}
	return mapFTPError(<-w.done, w.loc)
}

type ftpReader struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Close() error {
	err := r.Response.Close()
	r.conn.Quit()
	return err
}

func (fs *FTPFileSystem) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	addr, p, err := splitFTP(loc)
	if err != nil {
		return nil, err
	}
	c, err := fs.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	resp, err := c.Retr(p)
	if err != nil {
		c.Quit()
		return nil, mapFTPError(err, loc)
	}
	return &ftpReader{Response: resp, conn: c}, nil
}

func (fs *FTPFileSystem) Exists(ctx context.Context, loc string) (bool, error) {
	addr, p, err := splitFTP(loc)
	if err != nil {
		return false, err
	}
	c, err := fs.connect(ctx, addr)
	if err != nil {
		return false, err
	}
	defer c.Quit()
	if strings.HasSuffix(p, "/") {
		_, err := c.List(p)
		if isFTPNotFound(err) {
			return false, nil
		}
		return err == nil, err
	}
	return fileExists(c, p)
}

func (fs *FTPFileSystem) Rename(ctx context.Context, src, dst string) error {
	addr, from, err := splitFTP(src)
	if err != nil {
		return err
	}
	dstAddr, to, err := splitFTP(dst)
	if err != nil {
		return err
	}
	if addr != dstAddr {
		return fmt.Errorf("rename across ftp servers: %s -> %s", src, dst)
	}
	c, err := fs.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer c.Quit()

	ok, err := fileExists(c, from)
	if err != nil {
		return mapFTPError(err, src)
	}
	if !ok {
		return notFound(src)
	}
	if ok, err = fileExists(c, to); err != nil {
		return mapFTPError(err, dst)
	} else if ok {
		return alreadyExists(dst)
	}
	mkdirAll(c, path.Dir(to))
	return mapFTPError(c.Rename(from, to), src)
}

func (fs *FTPFileSystem) Delete(ctx context.Context, loc string) error {
	addr, p, err := splitFTP(loc)
	if err != nil {
		return err
	}
	c, err := fs.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer c.Quit()
	if strings.HasSuffix(p, "/") {
		return mapFTPError(c.RemoveDirRecur(strings.TrimSuffix(p, "/")), loc)
	}
	return mapFTPError(c.Delete(p), loc)
}

func (fs *FTPFileSystem) List(ctx context.Context, dir string) ([]string, error) {
	addr, p, err := splitFTP(dir)
	if err != nil {
		return nil, err
	}
	c, err := fs.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer c.Quit()
	entries, err := c.List(p)
	if err != nil {
		return nil, mapFTPError(err, dir)
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		name := prefix + e.Name
		if e.Type == ftp.EntryTypeFolder {
			name += "/"
		}
		out = append(out, name)
	}
	return out, nil
}

func init() {
	Register("ftp", NewFTPFileSystem)
}
