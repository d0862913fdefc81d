package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SnapshotStore archives raw fetched page bodies so a parse can be replayed
// later without re-fetching.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, tabID string, body []byte, contentType string) (string, error)
	SnapshotURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteSnapshot(ctx context.Context, key string) error
}

// NopSnapshotStore discards snapshots. Used when no object storage is
// configured.
type NopSnapshotStore struct{}

func (NopSnapshotStore) SaveSnapshot(context.Context, string, []byte, string) (string, error) {
	return "", nil
}
func (NopSnapshotStore) SnapshotURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (NopSnapshotStore) DeleteSnapshot(context.Context, string) error { return nil }

// MinioSnapshotStore stores gzip-compressed snapshots in a MinIO/S3 bucket.
type MinioSnapshotStore struct {
	client *minio.Client
	bucket string
}

// NewMinioSnapshotStore connects to MinIO and ensures the bucket exists.
func NewMinioSnapshotStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioSnapshotStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioSnapshotStore{client: client, bucket: bucket}, nil
}

// SaveSnapshot compresses and uploads one fetched body. The key is
// date-partitioned so bucket listings stay usable as the archive grows.
func (m *MinioSnapshotStore) SaveSnapshot(ctx context.Context, tabID string, body []byte, contentType string) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	key := fmt.Sprintf("snapshots/%s/%s.gz", time.Now().UTC().Format("2006/01/02"), tabID)
	_, err := m.client.PutObject(ctx, m.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType:     "application/gzip",
		ContentEncoding: "gzip",
		UserMetadata:    map[string]string{"original-content-type": contentType},
	})
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}
	return key, nil
}

// SnapshotURL generates a pre-signed GET URL for a stored snapshot.
func (m *MinioSnapshotStore) SnapshotURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign snapshot: %w", err)
	}
	return url.String(), nil
}

// DeleteSnapshot removes a stored snapshot.
func (m *MinioSnapshotStore) DeleteSnapshot(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
