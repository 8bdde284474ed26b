package fsys

import (
	"context"
	"net/textproto"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/require"
)

func TestSplitFTP(t *testing.T) {
	addr, p, err := splitFTP("ftp://files.example.com/out/p1/part.txt")
	require.NoError(t, err)
	require.Equal(t, "files.example.com:21", addr)
	require.Equal(t, "/out/p1/part.txt", p)

	addr, p, err = splitFTP("ftp://10.0.0.1:2121/out/")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:2121", addr)
	require.Equal(t, "/out/", p)

	_, _, err = splitFTP("ftp:///nohost")
	require.Error(t, err)
}

func TestFTPErrorMapping(t *testing.T) {
	err := mapFTPError(&textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such file"}, "ftp://h/x")
	require.ErrorIs(t, err, ErrNotFound)
	err = mapFTPError(&textproto.Error{Code: ftp.StatusNotLoggedIn, Msg: "Login incorrect"}, "ftp://h/x")
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestNewFTPFileSystem_Defaults(t *testing.T) {
	fs, err := NewFTPFileSystem(context.Background(), Config{})
	require.NoError(t, err)
	f := fs.(*FTPFileSystem)
	require.Equal(t, "anonymous", f.User)
	require.Equal(t, 10*time.Second, f.ConnTimeout)
}
