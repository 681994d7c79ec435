package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediastore/mediastore/internal/mediatype"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// LocalStore implements the ObjectStore interface using the local
// filesystem. Objects are stored as files within a configurable root
// directory, organized by bucket and key path. It backs development setups
// and the test suite.
type LocalStore struct {
	// RootDir is the base directory under which all object data is stored.
	RootDir string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// It creates the root directory and the temp directory if they do not exist.
func NewLocalStore(rootDir string) (*LocalStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory %q: %w", rootDir, err)
	}
	if err := os.MkdirAll(filepath.Join(rootDir, ".tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	return &LocalStore{RootDir: rootDir}, nil
}

// objectPath returns the full filesystem path for an object.
func (s *LocalStore) objectPath(bucket, key string) string {
	return filepath.Join(s.RootDir, bucket, filepath.FromSlash(key))
}

// tempPath returns a unique temporary file path in the .tmp directory.
func (s *LocalStore) tempPath() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return filepath.Join(s.RootDir, ".tmp", fmt.Sprintf("tmp-%032x", time.Now().UnixNano()))
	}
	return filepath.Join(s.RootDir, ".tmp", "tmp-"+hex.EncodeToString(b))
}

// Put writes object data to a file using the atomic write pattern:
// write to temp file, fsync, rename.
func (s *LocalStore) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64) error {
	objPath := s.objectPath(bucket, key)

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %q/%q: %w", bucket, key, err)
	}

	tmpPath := s.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, reader); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to final path: %w", err)
	}
	return nil
}

// rangedFile wraps an opened file limited to a byte range.
type rangedFile struct {
	io.Reader
	f *os.File
}

func (r *rangedFile) Close() error { return r.f.Close() }

// Get opens the object file for reading, optionally limited to a byte range.
// The second return value is always the total file size. The caller is
// responsible for closing the returned ReadCloser.
func (s *LocalStore) Get(ctx context.Context, bucket, key string, rng *ByteRange) (io.ReadCloser, int64, error) {
	objPath := s.objectPath(bucket, key)

	file, err := os.Open(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, mserr.ErrFileNotFound.WithMessagef("file %s not found", key)
		}
		return nil, 0, fmt.Errorf("opening object file %q/%q: %w", bucket, key, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("stat object file %q/%q: %w", bucket, key, err)
	}

	if rng == nil {
		return file, info.Size(), nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("seeking to range start: %w", err)
	}
	return &rangedFile{Reader: io.LimitReader(file, rng.Length()), f: file}, info.Size(), nil
}

// HeadInfo stats the object file without opening it for reading.
func (s *LocalStore) HeadInfo(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	objPath := s.objectPath(bucket, key)

	info, err := os.Stat(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mserr.ErrFileNotFound.WithMessagef("file %s not found", key)
		}
		return nil, fmt.Errorf("stat object file %q/%q: %w", bucket, key, err)
	}
	if info.IsDir() {
		return nil, mserr.ErrFileNotFound.WithMessagef("file %s not found", key)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		ContentType:  mediatype.FromFilename(key),
		AcceptRanges: "bytes",
		LastModified: info.ModTime(),
	}, nil
}

// ListByPrefix walks the bucket directory and returns keys starting with
// prefix, using "/" separators regardless of platform.
func (s *LocalStore) ListByPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	bucketDir := filepath.Join(s.RootDir, bucket)

	var keys []string
	err := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(bucketDir, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing prefix %q in %q: %w", prefix, bucket, err)
	}
	return keys, nil
}

// DeleteMany removes the given object files. Missing files are skipped;
// other per-key failures are logged, not raised.
func (s *LocalStore) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	for _, key := range keys {
		objPath := s.objectPath(bucket, key)
		if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to delete object file", "bucket", bucket, "key", key, "error", err)
			continue
		}
		cleanEmptyParents(filepath.Dir(objPath), filepath.Join(s.RootDir, bucket))
	}
	return nil
}

// HealthCheck verifies that the storage root directory is accessible.
func (s *LocalStore) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(s.RootDir)
	return err
}

// cleanEmptyParents removes empty directories starting from dir up to (but
// not including) stopAt. Keys containing "/" create subdirectories that
// would otherwise linger after deletion.
func cleanEmptyParents(dir, stopAt string) {
	dir = filepath.Clean(dir)
	stopAt = filepath.Clean(stopAt)

	for dir != stopAt && strings.HasPrefix(dir, stopAt) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

// Ensure LocalStore implements ObjectStore at compile time.
var _ ObjectStore = (*LocalStore)(nil)
