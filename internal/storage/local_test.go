package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// storeUnderTest lets the same suite run against LocalStore and MemoryStore.
func storesUnderTest(t *testing.T) map[string]ObjectStore {
	t.Helper()
	local, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return map[string]ObjectStore{
		"local":  local,
		"memory": NewMemoryStore(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			body := "some media bytes"

			if err := store.Put(ctx, "media", "abc123-photo.jpg", strings.NewReader(body), int64(len(body))); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			rc, total, err := store.Get(ctx, "media", "abc123-photo.jpg", nil)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			defer rc.Close()

			if total != int64(len(body)) {
				t.Errorf("total = %d, want %d", total, len(body))
			}
			got, _ := io.ReadAll(rc)
			if string(got) != body {
				t.Errorf("body = %q, want %q", got, body)
			}
		})
	}
}

func TestGetRange(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, "media", "k", strings.NewReader("0123456789"), 10); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			rc, total, err := store.Get(ctx, "media", "k", &ByteRange{Start: 2, End: 5})
			if err != nil {
				t.Fatalf("ranged Get failed: %v", err)
			}
			defer rc.Close()

			if total != 10 {
				t.Errorf("total = %d, want 10 (full object size)", total)
			}
			got, _ := io.ReadAll(rc)
			if string(got) != "2345" {
				t.Errorf("range body = %q, want %q", got, "2345")
			}
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Get(context.Background(), "media", "no-such-key", nil)
			if !errors.Is(err, mserr.ErrFileNotFound) {
				t.Errorf("Get missing key error = %v, want ErrFileNotFound", err)
			}
			if err == nil || !strings.Contains(err.Error(), "no-such-key") {
				t.Errorf("error should name the requested key: %v", err)
			}
		})
	}
}

func TestListByPrefix(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			keys := []string{"aaa111-one.png", "aaa111-transcode-one.jpg", "bbb222-two.png"}
			for _, k := range keys {
				if err := store.Put(ctx, "media", k, strings.NewReader("x"), 1); err != nil {
					t.Fatalf("Put %s failed: %v", k, err)
				}
			}

			got, err := store.ListByPrefix(ctx, "media", "aaa111")
			if err != nil {
				t.Fatalf("ListByPrefix failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("ListByPrefix returned %d keys, want 2: %v", len(got), got)
			}

			got, err = store.ListByPrefix(ctx, "media", "ccc")
			if err != nil {
				t.Fatalf("ListByPrefix failed: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("ListByPrefix(ccc) = %v, want empty", got)
			}
		})
	}
}

func TestDeleteManyToleratesMissing(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, "media", "exists", strings.NewReader("x"), 1); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			// A co-listed missing key must not fail the batch.
			if err := store.DeleteMany(ctx, "media", []string{"missing", "exists"}); err != nil {
				t.Fatalf("DeleteMany failed: %v", err)
			}

			if _, _, err := store.Get(ctx, "media", "exists", nil); !errors.Is(err, mserr.ErrFileNotFound) {
				t.Errorf("existing key not deleted, Get error = %v", err)
			}
		})
	}
}

func TestHeadInfo(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, "media", "abc-doc.pdf", strings.NewReader("%PDF-1.4"), 8); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			info, err := store.HeadInfo(ctx, "media", "abc-doc.pdf")
			if err != nil {
				t.Fatalf("HeadInfo failed: %v", err)
			}
			if info.Size != 8 {
				t.Errorf("Size = %d, want 8", info.Size)
			}
			if info.AcceptRanges != "bytes" {
				t.Errorf("AcceptRanges = %q, want bytes", info.AcceptRanges)
			}
			if info.ContentType != "application/pdf" {
				t.Errorf("ContentType = %q, want application/pdf", info.ContentType)
			}
		})
	}
}
