package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ObjectStore against any S3-compatible endpoint using
// the minio-go SDK.
type MinioStore struct {
	client *minio.Client
	config *Config
}

// Compile-time interface check.
var _ ObjectStore = (*MinioStore)(nil)

// NewMinioStore creates an object store client from validated configuration.
// It does not touch the network; use EnsureBucket to verify connectivity.
func NewMinioStore(config *Config) (*MinioStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid object store configuration: %w", err)
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &MinioStore{client: client, config: config}, nil
}

// EnsureBucket creates the archival bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.config.Bucket, err)
	}

	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.config.Bucket,
		minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.config.Bucket, err)
	}

	return nil
}

// Put writes an object, overwriting any existing object at key.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return ErrEmptyObjectKey
	}

	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.config.Bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}

	return nil
}

// Get reads an object's full contents.
func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyObjectKey
	}

	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return data, nil
}

// Move relocates an object via server-side copy then delete; S3 has no
// rename primitive.
func (s *MinioStore) Move(ctx context.Context, fromKey, toKey string) error {
	if fromKey == "" || toKey == "" {
		return ErrEmptyObjectKey
	}

	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.config.Bucket, Object: toKey},
		minio.CopySrcOptions{Bucket: s.config.Bucket, Object: fromKey})
	if err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, fromKey)
		}

		return fmt.Errorf("failed to copy %s to %s: %w", fromKey, toKey, err)
	}

	if err := s.client.RemoveObject(ctx, s.config.Bucket, fromKey,
		minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s after copy: %w", fromKey, err)
	}

	return nil
}

// Remove deletes an object. The SDK treats deleting a missing key as success,
// matching the interface contract.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyObjectKey
	}

	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	if err := s.client.RemoveObject(ctx, s.config.Bucket, key,
		minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}

	return nil
}

func (s *MinioStore) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.config.OperationTimeout)
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}

	return false
}
