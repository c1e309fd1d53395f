package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// MinIOStore uploads blobs to an S3 compatible bucket.
type MinIOStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	secure   bool
}

// NewMinIOStore connects to MinIO and creates the bucket if it is missing.
func NewMinIOStore(cfg domain.StorageConfig) (*MinIOStore, error) {
	if cfg.MinIOBucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.MinIOEndpoint, "http://"), "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinIOBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIOBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinIOBucket, err)
		}
		slog.Info("created document bucket", "bucket", cfg.MinIOBucket)
	}

	return &MinIOStore{client: client, bucket: cfg.MinIOBucket, endpoint: endpoint, secure: cfg.MinIOUseSSL}, nil
}

// Store implements domain.DocumentStore.
func (s *MinIOStore) Store(ctx context.Context, tenantID string, blob domain.Blob) (string, error) {
	key, err := objectKey(tenantID, blob.Name)
	if err != nil {
		return "", err
	}
	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(blob.Data), int64(len(blob.Data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.bucket, err)
	}

	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key), nil
}
