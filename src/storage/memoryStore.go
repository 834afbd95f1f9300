package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	body         []byte
	contentType  string
	lastModified time.Time
}

// MemoryStore keeps objects in memory (development/testing use).
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	now     func() time.Time

	// PutErr, when set, fails every Put.
	PutErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func memoryKey(bucket, key string) string {
	return bucket + "/" + key
}

func (s *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[memoryKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
	}

	out := make([]byte, len(obj.body))
	copy(out, obj.body)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, bucket, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.PutErr != nil {
		return s.PutErr
	}

	stored := make([]byte, len(body))
	copy(stored, body)

	s.objects[memoryKey(bucket, key)] = memoryObject{
		body:         stored,
		contentType:  contentType,
		lastModified: s.now(),
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := memoryKey(bucket, prefix)

	var objects []ObjectInfo
	for k, obj := range s.objects {
		if !strings.HasPrefix(k, full) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          strings.TrimPrefix(k, bucket+"/"),
			Size:         int64(len(obj.body)),
			LastModified: obj.lastModified,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// ContentType returns the content type an object was stored with.
func (s *MemoryStore) ContentType(bucket, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[memoryKey(bucket, key)].contentType
}

// Has reports whether an object exists.
func (s *MemoryStore) Has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[memoryKey(bucket, key)]
	return ok
}

// SetClock replaces the clock used to stamp LastModified.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
