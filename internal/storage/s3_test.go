package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// mockS3 is an in-memory S3API implementation for unit tests.
type mockS3 struct {
	objects map[string][]byte
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	total := int64(len(data))
	out := &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(total),
	}
	if rng := aws.ToString(in.Range); rng != "" {
		var start, end int64
		if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q", rng)
		}
		if end >= total {
			end = total - 1
		}
		out.Body = io.NopCloser(bytes.NewReader(data[start : end+1]))
		out.ContentLength = aws.Int64(end - start + 1)
		out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	}
	return out, nil
}

func (m *mockS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
		AcceptRanges:  aws.String("bytes"),
	}, nil
}

func (m *mockS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		delete(m.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (m *mockS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func (m *mockS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	store := NewS3StoreWithClient(newMockS3(), "media")
	ctx := context.Background()

	if err := store.Put(ctx, "media", "k1", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rc, total, err := store.Get(ctx, "media", "k1", nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "hello" || total != 5 {
		t.Errorf("Get = (%q, %d), want (hello, 5)", body, total)
	}
}

func TestS3StoreRangedGetReportsTotal(t *testing.T) {
	store := NewS3StoreWithClient(newMockS3(), "media")
	ctx := context.Background()

	if err := store.Put(ctx, "media", "k", strings.NewReader("0123456789"), 10); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rc, total, err := store.Get(ctx, "media", "k", &ByteRange{Start: 0, End: 1})
	if err != nil {
		t.Fatalf("ranged Get failed: %v", err)
	}
	defer rc.Close()

	body, _ := io.ReadAll(rc)
	if string(body) != "01" {
		t.Errorf("range body = %q, want 01", body)
	}
	// Total must come from Content-Range, not the range length.
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
}

func TestS3StoreNotFound(t *testing.T) {
	store := NewS3StoreWithClient(newMockS3(), "media")

	_, _, err := store.Get(context.Background(), "media", "missing", nil)
	if !errors.Is(err, mserr.ErrFileNotFound) {
		t.Errorf("Get missing = %v, want ErrFileNotFound", err)
	}

	_, err = store.HeadInfo(context.Background(), "media", "missing")
	if !errors.Is(err, mserr.ErrFileNotFound) {
		t.Errorf("HeadInfo missing = %v, want ErrFileNotFound", err)
	}
}

func TestParseTotalFromContentRange(t *testing.T) {
	cases := []struct {
		in    string
		total int64
		ok    bool
	}{
		{"bytes 0-1/10", 10, true},
		{"bytes 5-9/2048", 2048, true},
		{"bytes 0-1/*", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		total, ok := parseTotalFromContentRange(tc.in)
		if ok != tc.ok || (ok && total != tc.total) {
			t.Errorf("parseTotalFromContentRange(%q) = (%d, %v), want (%d, %v)", tc.in, total, ok, tc.total, tc.ok)
		}
	}
}
