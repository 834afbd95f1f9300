package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore is the Store backed by any S3-compatible endpoint reachable
// through minio-go.
type MinioStore struct {
	Client *minio.Client
}

func NewMinioClient(endpoint, accessKeyID, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return client, nil
}

func NewMinioStore(client *minio.Client) *MinioStore {
	return &MinioStore{Client: client}
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("minio client not initialized")
	}

	obj, err := s.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("get", bucket, key, err)
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap("read", bucket, key, err)
	}

	return content, nil
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if s.Client == nil {
		return fmt.Errorf("minio client not initialized")
	}

	_, err := s.Client.PutObject(
		ctx,
		bucket,
		key,
		bytes.NewReader(body),
		int64(len(body)),
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)
	if err != nil {
		return s.wrap("put", bucket, key, err)
	}

	return nil
}

func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("minio client not initialized")
	}

	var objects []ObjectInfo

	for obj := range s.Client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, s.wrap("list", bucket, prefix, obj.Err)
		}

		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}

	return objects, nil
}

func (s *MinioStore) wrap(op, bucket, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
	}
	return fmt.Errorf("minio %s s3://%s/%s: %w", op, bucket, key, err)
}
