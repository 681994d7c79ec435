package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediastore/mediastore/internal/mediatype"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// MemoryStore implements the ObjectStore interface using in-memory maps.
// It exists for tests; nothing is persisted.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte // key: "bucket/key"
	mtimes  map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
	}
}

func memKey(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores a copy of the reader's bytes.
func (s *MemoryStore) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[memKey(bucket, key)] = data
	s.mtimes[memKey(bucket, key)] = time.Now().UTC()
	return nil
}

// Get returns the stored bytes, optionally limited to a byte range.
func (s *MemoryStore) Get(ctx context.Context, bucket, key string, rng *ByteRange) (io.ReadCloser, int64, error) {
	s.mu.RLock()
	data, ok := s.objects[memKey(bucket, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, mserr.ErrFileNotFound.WithMessagef("file %s not found", key)
	}

	total := int64(len(data))
	if rng == nil {
		return io.NopCloser(bytes.NewReader(data)), total, nil
	}

	start, end := rng.Start, rng.End
	if start < 0 || start >= total {
		return nil, total, mserr.ErrInvalidRange
	}
	if end >= total {
		end = total - 1
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), total, nil
}

// HeadInfo returns metadata for the stored object.
func (s *MemoryStore) HeadInfo(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[memKey(bucket, key)]
	if !ok {
		return nil, mserr.ErrFileNotFound.WithMessagef("file %s not found", key)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  mediatype.FromFilename(key),
		AcceptRanges: "bytes",
		LastModified: s.mtimes[memKey(bucket, key)],
	}, nil
}

// ListByPrefix returns keys in the bucket starting with prefix, sorted.
func (s *MemoryStore) ListByPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucketPrefix := bucket + "/"
	var keys []string
	for k := range s.objects {
		if !strings.HasPrefix(k, bucketPrefix) {
			continue
		}
		key := strings.TrimPrefix(k, bucketPrefix)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteMany removes the given keys; missing keys are no-ops.
func (s *MemoryStore) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, memKey(bucket, key))
		delete(s.mtimes, memKey(bucket, key))
	}
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Ensure MemoryStore implements ObjectStore at compile time.
var _ ObjectStore = (*MemoryStore)(nil)
