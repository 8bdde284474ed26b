package fsys

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

// memS3 is an in-memory S3API honouring If-None-Match on PutObject.
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}}
}

func (m *memS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := *in.Bucket + "/" + *in.Key
	if _, ok := m.objects[k]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	m.objects[k] = body
	m.puts++
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (m *memS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := *in.Bucket + "/"
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, bucket+prefix) {
			keys = append(keys, strings.TrimPrefix(k, bucket))
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := map[string]bool{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func writeObject(t *testing.T, fs FileSystem, loc, body string) {
	t.Helper()
	w, err := fs.Create(context.Background(), loc)
	require.NoError(t, err)
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestS3_CreateOpenExists(t *testing.T) {
	mem := newMemS3()
	fs := &S3FileSystem{Scheme: "s3", Client: mem, ConditionalWrites: true}
	ctx := context.Background()

	writeObject(t, fs, "s3://bucket/out/p1/temp/b1", "a\nb\n")

	ok, err := fs.Exists(ctx, "s3://bucket/out/p1/temp/b1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = fs.Exists(ctx, "s3://bucket/out/p1/temp/")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = fs.Exists(ctx, "s3://bucket/out/p2/part")
	require.NoError(t, err)
	require.False(t, ok)

	r, err := fs.Open(ctx, "s3://bucket/out/p1/temp/b1")
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "a\nb\n", string(b))

	_, err = fs.Open(ctx, "s3://bucket/missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestS3_RenameIsConditional(t *testing.T) {
	for _, conditional := range []bool{true, false} {
		mem := newMemS3()
		fs := &S3FileSystem{Scheme: "gs", Client: mem, ConditionalWrites: conditional}
		ctx := context.Background()

		writeObject(t, fs, "gs://bucket/p1/temp/a", "from a")
		writeObject(t, fs, "gs://bucket/p1/temp/b", "from b")

		require.NoError(t, fs.Rename(ctx, "gs://bucket/p1/temp/a", "gs://bucket/p1/out.txt"))
		require.ErrorIs(t, fs.Rename(ctx, "gs://bucket/p1/temp/b", "gs://bucket/p1/out.txt"), ErrExist)
		require.ErrorIs(t, fs.Rename(ctx, "gs://bucket/p1/temp/a", "gs://bucket/p1/out.txt"), ErrNotFound)

		require.Equal(t, "from a", string(mem.objects["bucket/p1/out.txt"]))
		_, stillThere := mem.objects["bucket/p1/temp/a"]
		require.False(t, stillThere)
	}
}

func TestS3_DeletePrefixAndList(t *testing.T) {
	mem := newMemS3()
	fs := &S3FileSystem{Scheme: "s3", Client: mem, ConditionalWrites: true}
	ctx := context.Background()

	writeObject(t, fs, "s3://bucket/out/p1/temp/a", "a")
	writeObject(t, fs, "s3://bucket/out/p1/temp/b", "b")
	writeObject(t, fs, "s3://bucket/out/p1/out.txt", "o")
	writeObject(t, fs, "s3://bucket/out/p2/out.txt", "o")

	entries, err := fs.List(ctx, "s3://bucket/out/")
	require.NoError(t, err)
	require.Equal(t, []string{"s3://bucket/out/p1/", "s3://bucket/out/p2/"}, entries)

	require.NoError(t, fs.Delete(ctx, "s3://bucket/out/p1/temp/"))
	require.ErrorIs(t, fs.Delete(ctx, "s3://bucket/out/p1/temp/"), ErrNotFound)
	require.ErrorIs(t, fs.Delete(ctx, "s3://bucket/out/p1/nothing"), ErrNotFound)

	entries, err = fs.List(ctx, "s3://bucket/out/p1")
	require.NoError(t, err)
	require.Equal(t, []string{"s3://bucket/out/p1/out.txt"}, entries)
}
