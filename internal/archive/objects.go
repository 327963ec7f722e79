package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"climatewatch/internal/types"
)

// S3PutClient abstracts the S3 PutObject operation for testability.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ObjectStore writes archives to an S3 bucket.
type S3ObjectStore struct {
	client S3PutClient
	bucket string
}

var _ ObjectStore = (*S3ObjectStore)(nil)

// NewS3ObjectStore creates an S3-backed ObjectStore.
func NewS3ObjectStore(client S3PutClient, bucket string) *S3ObjectStore {
	return &S3ObjectStore{client: client, bucket: bucket}
}

// Put implements ObjectStore.
func (s *S3ObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// MinIOConfig configures a MinIOObjectStore.
type MinIOConfig struct {
	Endpoint  string
	AccessKey types.SecretString
	SecretKey types.SecretString
	Region    string
	Bucket    string
	Logger    *slog.Logger
}

// MinIOObjectStore writes archives to any S3-compatible server through
// minio-go. The bucket is created on first use.
type MinIOObjectStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
	ready  bool
}

var _ ObjectStore = (*MinIOObjectStore)(nil)

// NewMinIOObjectStore builds the client. It does not contact the server.
func NewMinIOObjectStore(cfg MinIOConfig) (*MinIOObjectStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	endpoint := sanitizeEndpoint(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey.Unmask(), cfg.SecretKey.Unmask(), ""),
		Secure:       strings.HasPrefix(strings.ToLower(strings.TrimSpace(cfg.Endpoint)), "https"),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinIOObjectStore{
		client: client,
		bucket: cfg.Bucket,
		logger: cfg.Logger.With("component", "archive.minio"),
	}, nil
}

func (s *MinIOObjectStore) ensureBucket(ctx context.Context) error {
	if s.ready {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		s.ready = true
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	s.logger.InfoContext(ctx, "archive bucket ready", "bucket", s.bucket)
	s.ready = true
	return nil
}

// Put implements ObjectStore.
func (s *MinIOObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("minio bucket %s: %w", s.bucket, err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: len(body) < 5*1024*1024,
	})
	if err != nil {
		return fmt.Errorf("minio put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// sanitizeEndpoint strips the scheme and path, which minio.New rejects.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
