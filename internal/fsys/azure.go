package fsys

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type AzureConfig struct {
	Account    string `mapstructure:"account"`
	Key        string `mapstructure:"key"`
	ServiceURL string `mapstructure:"service_url"`
}

// blobStore is the slice of the Azure Blob API this back end needs.
type blobStore interface {
	Upload(ctx context.Context, container, name string, body []byte, noReplace bool) error
	Download(ctx context.Context, container, name string) (io.ReadCloser, error)
	Exists(ctx context.Context, container, name string) (bool, error)
	Delete(ctx context.Context, container, name string) error
	ListNames(ctx context.Context, container, prefix string) ([]string, error)
}

// AzureFileSystem serves az://container/path locations.
type AzureFileSystem struct {
	store blobStore
}

func NewAzureFileSystem(_ context.Context, cfg Config) (FileSystem, error) {
	c := cfg.Azure
	if c.Account == "" || c.Key == "" {
		return nil, fmt.Errorf("azure filesystem requires 'account' and 'key' settings")
	}
	cred, err := azblob.NewSharedKeyCredential(c.Account, c.Key)
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential error: %w", err)
	}
	serviceURL := c.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", c.Account)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client init error: %w", err)
	}
	return &AzureFileSystem{store: &azblobStore{client: client}}, nil
}

func (a *AzureFileSystem) split(loc string) (container, name string, err error) {
	return splitRemote(loc, "az")
}

func (a *AzureFileSystem) Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	container, name, err := a.split(loc)
	if err != nil {
		return nil, err
	}
	return &blobWriter{ctx: ctx, store: a.store, container: container, name: name}, nil
}

type blobWriter struct {
	ctx       context.Context
	store     blobStore
	container string
	name      string
	buf       []byte
	closed    bool
}

func (w *blobWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed blob %s/%s", w.container, w.name)
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *blobWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return mapBlobError(w.store.Upload(w.ctx, w.container, w.name, w.buf, true), w.container+"/"+w.name)
}

func (a *AzureFileSystem) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	container, name, err := a.split(loc)
	if err != nil {
		return nil, err
	}
	r, err := a.store.Download(ctx, container, name)
	if err != nil {
		return nil, mapBlobError(err, loc)
	}
	return r, nil
}

func (a *AzureFileSystem) Exists(ctx context.Context, loc string) (bool, error) {
	container, name, err := a.split(loc)
	if err != nil {
		return false, err
	}
	if name == "" || strings.HasSuffix(name, "/") {
		names, err := a.store.ListNames(ctx, container, name)
		if err != nil {
			return false, mapBlobError(err, loc)
		}
		return len(names) > 0, nil
	}
	ok, err := a.store.Exists(ctx, container, name)
	return ok, mapBlobError(err, loc)
}

func (a *AzureFileSystem) Rename(ctx context.Context, src, dst string) error {
	srcContainer, srcName, err := a.split(src)
	if err != nil {
		return err
	}
	dstContainer, dstName, err := a.split(dst)
	if err != nil {
		return err
	}
	r, err := a.store.Download(ctx, srcContainer, srcName)
	if err != nil {
		return mapBlobError(err, src)
	}
	body, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := a.store.Upload(ctx, dstContainer, dstName, body, true); err != nil {
		return mapBlobError(err, dst)
	}
	if err := mapBlobError(a.store.Delete(ctx, srcContainer, srcName), src); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (a *AzureFileSystem) Delete(ctx context.Context, loc string) error {
	container, name, err := a.split(loc)
	if err != nil {
		return err
	}
	if name != "" && !strings.HasSuffix(name, "/") {
		return mapBlobError(a.store.Delete(ctx, container, name), loc)
	}
	names, err := a.store.ListNames(ctx, container, name)
	if err != nil {
		return mapBlobError(err, loc)
	}
	if len(names) == 0 {
		return notFound(loc)
	}
	for _, n := range names {
		if err := mapBlobError(a.store.Delete(ctx, container, n), container+"/"+n); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// List derives the immediate children of dir from a flat listing.
func (a *AzureFileSystem) List(ctx context.Context, dir string) ([]string, error) {
	container, prefix, err := a.split(dir)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	names, err := a.store.ListNames(ctx, container, prefix)
	if err != nil {
		return nil, mapBlobError(err, dir)
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		child := strings.TrimPrefix(n, prefix)
		if i := strings.Index(child, "/"); i >= 0 {
			child = child[:i+1]
		}
		if child == "" || seen[child] {
			continue
		}
		seen[child] = true
		out = append(out, "az://"+container+"/"+prefix+child)
	}
	return out, nil
}

func mapBlobError(err error, loc string) error {
	switch {
	case err == nil:
		return nil
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return fmt.Errorf("%w: %s: %v", ErrNotFound, loc, err)
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet):
		return fmt.Errorf("%w: %s: %v", ErrExist, loc, err)
	}
	return fmt.Errorf("%s: %w", loc, err)
}

// azblobStore adapts *azblob.Client to blobStore.
type azblobStore struct {
	client *azblob.Client
}

func (s *azblobStore) Upload(ctx context.Context, container, name string, body []byte, noReplace bool) error {
	var opts *azblob.UploadBufferOptions
	if noReplace {
		etag := azcore.ETagAny
		opts = &azblob.UploadBufferOptions{
			AccessConditions: &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: &etag},
			},
		}
	}
	_, err := s.client.UploadBuffer(ctx, container, name, body, opts)
	return err
}

func (s *azblobStore) Download(ctx context.Context, container, name string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *azblobStore) Exists(ctx context.Context, container, name string) (bool, error) {
	_, err := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(name).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, err
}

func (s *azblobStore) Delete(ctx context.Context, container, name string) error {
	_, err := s.client.DeleteBlob(ctx, container, name, nil)
	return err
}

func (s *azblobStore) ListNames(ctx context.Context, container, prefix string) ([]string, error) {
	var names []string
	pager := s.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func init() {
	Register("az", NewAzureFileSystem)
}
