package fsys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const gcsInteropEndpoint = "https://storage.googleapis.com"

type S3Config struct {
	Region           string `mapstructure:"region"`
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UsePathStyle     bool   `mapstructure:"use_path_style"`
	DisableChecksums bool   `mapstructure:"disable_checksums"`
}

// S3API is the subset of the S3 client used here (mocked in tests).
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3FileSystem stores files as objects. Directories are key prefixes.
//
// Writes are buffered and uploaded on Close. When ConditionalWrites is set,
// uploads carry If-None-Match: * so S3 itself refuses to overwrite; otherwise
// a HEAD request is made first, which leaves a small race window.
type S3FileSystem struct {
	Scheme            string
	Client            S3API
	ConditionalWrites bool
}

func NewS3FileSystem(ctx context.Context, cfg Config) (FileSystem, error) {
	client, err := newS3Client(ctx, cfg.S3, "")
	if err != nil {
		return nil, err
	}
	return &S3FileSystem{Scheme: "s3", Client: client, ConditionalWrites: true}, nil
}

// NewGCSFileSystem talks to Google Cloud Storage through its S3-compatible
// XML API using HMAC keys.
func NewGCSFileSystem(ctx context.Context, cfg Config) (FileSystem, error) {
	gcs := cfg.GCS
	if gcs.Region == "" {
		gcs.Region = "auto"
	}
	client, err := newS3Client(ctx, gcs, gcsInteropEndpoint)
	if err != nil {
		return nil, err
	}
	return &S3FileSystem{Scheme: "gs", Client: client}, nil
}

func newS3Client(ctx context.Context, c S3Config, defaultEndpoint string) (*s3.Client, error) {
	var awsCfgOpts []func(*config.LoadOptions) error
	if c.Region != "" {
		awsCfgOpts = append(awsCfgOpts, config.WithRegion(c.Region))
	}
	if c.AccessKeyID != "" {
		awsCfgOpts = append(awsCfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}
	if c.DisableChecksums {
		awsCfgOpts = append(awsCfgOpts, config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired))
		awsCfgOpts = append(awsCfgOpts, config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, awsCfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config load error: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	}), nil
}

func (s *S3FileSystem) split(loc string) (bucket, key string, err error) {
	return splitRemote(loc, s.Scheme)
}

func (s *S3FileSystem) location(bucket, key string) string {
	return s.Scheme + "://" + bucket + "/" + key
}

func (s *S3FileSystem) Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	bucket, key, err := s.split(loc)
	if err != nil {
		return nil, err
	}
	return &s3Writer{ctx: ctx, fs: s, bucket: bucket, key: key}, nil
}

type s3Writer struct {
	ctx    context.Context
	fs     *S3FileSystem
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed object %s", w.fs.location(w.bucket, w.key))
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fs.put(w.ctx, w.bucket, w.key, w.buf.Bytes())
}

// put uploads body unless the key already exists.
func (s *S3FileSystem) put(ctx context.Context, bucket, key string, body []byte) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if s.ConditionalWrites {
		in.IfNoneMatch = aws.String("*")
	} else {
		exists, err := s.exists(ctx, bucket, key)
		if err != nil {
			return err
		}
		if exists {
			return alreadyExists(s.location(bucket, key))
		}
	}
	if _, err := s.Client.PutObject(ctx, in); err != nil {
		return s.mapError(err, s.location(bucket, key))
	}
	return nil
}

func (s *S3FileSystem) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	bucket, key, err := s.split(loc)
	if err != nil {
		return nil, err
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, s.mapError(err, loc)
	}
	return out.Body, nil
}

func (s *S3FileSystem) Exists(ctx context.Context, loc string) (bool, error) {
	bucket, key, err := s.split(loc)
	if err != nil {
		return false, err
	}
	if strings.HasSuffix(key, "/") || key == "" {
		keys, err := s.listAll(ctx, bucket, key, 1)
		return len(keys) > 0, err
	}
	return s.exists(ctx, bucket, key)
}

func (s *S3FileSystem) exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if err = s.mapError(err, s.location(bucket, key)); isNotFound(err) {
		return false, nil
	}
	return false, err
}

// Rename copies through the client so the destination write can be made
// conditional, then deletes the source.
func (s *S3FileSystem) Rename(ctx context.Context, src, dst string) error {
	srcBucket, srcKey, err := s.split(src)
	if err != nil {
		return err
	}
	dstBucket, dstKey, err := s.split(dst)
	if err != nil {
		return err
	}

	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(srcBucket), Key: aws.String(srcKey)})
	if err != nil {
		return s.mapError(err, src)
	}
	body, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	if err := s.put(ctx, dstBucket, dstKey, body); err != nil {
		return err
	}
	if _, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(srcBucket), Key: aws.String(srcKey)}); err != nil {
		if err = s.mapError(err, src); !isNotFound(err) {
			return err
		}
	}
	return nil
}

func (s *S3FileSystem) Delete(ctx context.Context, loc string) error {
	bucket, key, err := s.split(loc)
	if err != nil {
		return err
	}
	var keys []string
	if strings.HasSuffix(key, "/") || key == "" {
		if keys, err = s.listAll(ctx, bucket, key, 0); err != nil {
			return err
		}
	} else {
		exists, err := s.exists(ctx, bucket, key)
		if err != nil {
			return err
		}
		if exists {
			keys = []string{key}
		}
	}
	if len(keys) == 0 {
		return notFound(loc)
	}
	for _, k := range keys {
		if _, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(k)}); err != nil {
			if err = s.mapError(err, s.location(bucket, k)); !isNotFound(err) {
				return err
			}
		}
	}
	return nil
}

// listAll returns every key under prefix; limit 0 means no limit.
func (s *S3FileSystem) listAll(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s.mapError(err, s.location(bucket, prefix))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
			if limit > 0 && len(keys) >= limit {
				return keys, nil
			}
		}
	}
	return keys, nil
}

func (s *S3FileSystem) List(ctx context.Context, dir string) ([]string, error) {
	bucket, prefix, err := s.split(dir)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []string
	p := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s.mapError(err, dir)
		}
		for _, cp := range page.CommonPrefixes {
			out = append(out, s.location(bucket, aws.ToString(cp.Prefix)))
		}
		for _, obj := range page.Contents {
			out = append(out, s.location(bucket, aws.ToString(obj.Key)))
		}
	}
	return out, nil
}

func (s *S3FileSystem) mapError(err error, loc string) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %s: %v", ErrNotFound, loc, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %s: %v", ErrExist, loc, err)
		}
	}
	return fmt.Errorf("%s: %w", loc, err)
}

func init() {
	Register("s3", NewS3FileSystem)
	Register("gs", NewGCSFileSystem)
}
