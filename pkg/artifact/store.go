package artifact

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/malscan/malscan/pkg/config"
	"github.com/malscan/malscan/pkg/log"
)

// Store defines content-addressed blob storage keyed by hex digest
type Store interface {
	// Put writes a blob under the given key. Re-putting the same key
	// with the same bytes succeeds without error.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Fetch downloads the blob to a file inside destDir and returns
	// the local path.
	Fetch(ctx context.Context, key, destDir string) (string, error)
}

// Blob store failures are transient (network, credentials, permission);
// callers get three attempts with 1/2/4 second waits.
const (
	maxAttempts     = 3
	initialInterval = 1 * time.Second
)

// MinioStore implements Store against a MinIO/S3 bucket
type MinioStore struct {
	client *minio.Client
	bucket string

	mu       sync.Mutex
	verified bool
}

// NewMinioStore creates a store for the uploads bucket
func NewMinioStore(cfg config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.MinioBucketUploads,
	}, nil
}

// Put uploads a blob, creating the bucket on first use
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	logger := log.WithComponent("artifact")

	op := func() error {
		if err := s.ensureBucket(ctx); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, s.bucket, key,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	}

	if err := retryTransient(ctx, op, logger, "put", key); err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}

	logger.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("size", len(data)).
		Str("content_type", contentType).
		Msg("blob stored")
	return nil
}

// Fetch downloads the blob for key into destDir
func (s *MinioStore) Fetch(ctx context.Context, key, destDir string) (string, error) {
	logger := log.WithComponent("artifact")
	destPath := filepath.Join(destDir, key+".bin")

	op := func() error {
		return s.client.FGetObject(ctx, s.bucket, key, destPath, minio.GetObjectOptions{})
	}

	if err := retryTransient(ctx, op, logger, "fetch", key); err != nil {
		return "", fmt.Errorf("failed to fetch blob %s: %w", key, err)
	}

	logger.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Str("dest_path", destPath).
		Msg("blob fetched")
	return destPath, nil
}

// ensureBucket creates the bucket on first use. The verified flag only
// caches success, so a failed probe is retried on the next call.
func (s *MinioStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.verified {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
		lg := log.WithComponent("artifact")
		lg.Info().Str("bucket", s.bucket).Msg("bucket created")
	}
	s.verified = true
	return nil
}

// retryTransient runs op with bounded exponential backoff: 3 attempts
// with 1s and 2s waits between them.
func retryTransient(ctx context.Context, op backoff.Operation, logger zerolog.Logger, what, key string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 4 * time.Second

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		logger.Warn().
			Err(err).
			Str("op", what).
			Str("key", key).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("blob operation retry")
	}

	return backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx),
		notify)
}
