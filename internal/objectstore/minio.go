// Package objectstore reads and writes original images in an S3-compatible
// bucket (MinIO, Backblaze B2, AWS S3).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kozaktomas/photo-indexer/internal/config"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// Object is one listed bucket entry.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore creates a client for the configured bucket. Region may be
// empty, in which case the client looks it up on first use.
func NewMinIOStore(cfg config.ObjectStoreConfig, region string) (*MinIOStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *MinIOStore) Bucket() string {
	return s.bucket
}

// classify maps a minio error to the pipeline's error categories.
func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return errkind.Wrap(errkind.ErrNotFound, op, err)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: access denied: %w", op, err)
	default:
		return errkind.Wrap(errkind.ErrTransientIO, op, err)
	}
}

// Download fetches the object behind a photo's source location.
func (s *MinIOStore) Download(ctx context.Context, location string) ([]byte, error) {
	key, err := KeyFromLocation(location, s.bucket)
	if err != nil {
		return nil, err
	}
	return s.GetObject(ctx, key)
}

// GetObject retrieves data by key.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("get object "+key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify("read object "+key, err)
	}
	return data, nil
}

// PutObject uploads data under the given key.
func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classify("put object "+key, err)
	}
	return nil
}

// ListObjects returns all objects under the given prefix, in the order the server returns them.
func (s *MinIOStore) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classify("list objects "+prefix, obj.Err)
		}
		objects = append(objects, Object{Key: obj.Key, Size: obj.Size, ContentType: obj.ContentType})
	}
	return objects, nil
}

// Ping checks bucket connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("check bucket", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s: %w", s.bucket, errkind.ErrNotFound)
	}
	return nil
}
