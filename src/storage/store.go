package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the object-store collaborator shared by every stage. Put
// overwrites unconditionally; Get fails with ErrNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
