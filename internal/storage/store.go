// Package storage defines the interface and implementations for MediaStore's
// object data storage layer.
package storage

import (
	"context"
	"io"
	"time"
)

// ByteRange is an inclusive byte range [Start, End] within an object.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ObjectInfo describes an object without its body.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	AcceptRanges string
	LastModified time.Time
}

// ObjectStore defines the interface for reading and writing raw object data.
// Implementations provide the underlying storage mechanism (S3-compatible
// store, local filesystem, in-memory for tests). All methods must be safe
// for concurrent use.
//
// Key collision semantics belong to the reconciliation engine: Put overwrites
// silently when the key exists.
type ObjectStore interface {
	// Put writes the data from the reader under the given bucket and key.
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64) error

	// Get retrieves object data. When rng is non-nil, only that byte range is
	// returned; the second return value is always the total object size. The
	// caller is responsible for closing the returned ReadCloser. A missing
	// key yields errors.ErrFileNotFound.
	Get(ctx context.Context, bucket, key string, rng *ByteRange) (io.ReadCloser, int64, error)

	// HeadInfo returns object metadata without transferring the body.
	// A missing key yields errors.ErrFileNotFound.
	HeadInfo(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// ListByPrefix returns all keys in the bucket starting with prefix.
	// The reconciliation engine uses this with a fingerprint prefix to
	// detect duplicate content.
	ListByPrefix(ctx context.Context, bucket, prefix string) ([]string, error)

	// DeleteMany removes the given keys best-effort: partial failures are
	// logged, not raised, and deleting an already-missing key is a no-op.
	DeleteMany(ctx context.Context, bucket string, keys []string) error

	// HealthCheck verifies that the store is reachable.
	HealthCheck(ctx context.Context) error
}
