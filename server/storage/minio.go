// Package storage is the blob half of the storage gateway: screenshot
// binaries keyed by the generated object name, backed by MinIO.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Storage struct {
	client            *minio.Client
	screenshotsBucket string
}

func New(ctx context.Context, endpoint, accessKey, secretKey string, useSSL bool, screenshotsBucket string) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	if screenshotsBucket == "" {
		screenshotsBucket = "screenshots"
	}

	s := &Storage{
		client:            client,
		screenshotsBucket: screenshotsBucket,
	}

	exists, err := client.BucketExists(ctx, s.screenshotsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", s.screenshotsBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, s.screenshotsBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", s.screenshotsBucket, err)
		}
	}

	return s, nil
}

// PutScreenshot stores one screenshot binary under the given object key.
func (s *Storage) PutScreenshot(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(
		ctx,
		s.screenshotsBucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/png"},
	)
	if err != nil {
		return fmt.Errorf("failed to upload screenshot %s: %w", key, err)
	}
	return nil
}

// RemoveScreenshot deletes a screenshot blob. Used to roll back an
// upload whose metadata write failed.
func (s *Storage) RemoveScreenshot(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.screenshotsBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove screenshot %s: %w", key, err)
	}
	return nil
}

// GetScreenshot opens a screenshot blob for streaming, returning the
// reader and the object size.
func (s *Storage) GetScreenshot(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.screenshotsBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get screenshot %s: %w", key, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, fmt.Errorf("failed to stat screenshot %s: %w", key, err)
	}

	return obj, stat.Size, nil
}
