package main

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sink receives every file written by the exporters.
type Sink interface {
	Send(context.Context, string) error
}

// LogSink only logs the files it receives.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(_ context.Context, filename string) error {
	fi, err := os.Stat(filename)
	if err != nil {
		return err
	}
	log.Debug().Str("file", filename).Int64("bytes", fi.Size()).Msg("file written")
	return nil
}

// S3Config configures the S3 sink.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	Insecure  bool
}

// S3Sink uploads the exported files to an S3 compatible bucket.
type S3Sink struct {
	client *minio.Client
	bucket string
	prefix string
	root   string
}

// NewS3Sink creates a new S3Sink. Object keys are the files' paths relative
// to root, under the configured prefix.
func NewS3Sink(cfg S3Config, root string) (*S3Sink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create s3 client")
	}

	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		root:   root,
	}, nil
}

// Send implements Sink.
func (s *S3Sink) Send(ctx context.Context, filename string) error {
	key, err := s.objectKey(filename)
	if err != nil {
		return err
	}

	info, err := s.client.FPutObject(ctx, s.bucket, key, filename, minio.PutObjectOptions{
		ContentType: contentType(filename),
	})
	if err != nil {
		return errors.Wrapf(err, "upload %s", filename)
	}

	log.Info().Str("bucket", s.bucket).Str("key", key).Int64("bytes", info.Size).Msg("file uploaded")
	return nil
}

func (s *S3Sink) objectKey(filename string) (string, error) {
	rel, err := filepath.Rel(s.root, filename)
	if err != nil {
		return "", errors.Wrapf(err, "relative path of %s", filename)
	}
	return path.Join(s.prefix, filepath.ToSlash(rel)), nil
}

// contentType is the media type of an exported file.
func contentType(filename string) string {
	if strings.HasSuffix(filename, zstdExt) {
		return "application/zstd"
	}

	switch filepath.Ext(filename) {
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".feather":
		return "application/vnd.apache.arrow.file"
	case ".db":
		return "application/vnd.sqlite3"
	}
	return "application/octet-stream"
}
