// S3-compatible object store adapter for MediaStore.
//
// All data operations are proxied to an S3-compatible endpoint (AWS S3,
// MinIO, ...) via the AWS SDK for Go v2. Credentials are resolved via the
// standard AWS credential chain unless static credentials are configured.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// S3API defines the subset of the AWS S3 client interface that the store
// uses. This allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store implements the ObjectStore interface against an S3-compatible
// endpoint.
type S3Store struct {
	client S3API
	// bucket is the default bucket, used only for health probing; every data
	// operation takes its bucket explicitly.
	bucket string
}

// S3Options configures the S3 client construction.
type S3Options struct {
	// Endpoint is an optional custom endpoint URL (e.g., a MinIO host).
	Endpoint string
	// Region is the bucket region (default "us-east-1" for MinIO).
	Region string
	// Bucket is the default bucket probed by HealthCheck.
	Bucket string
	// PathStyle forces path-style addressing, required by most MinIO setups.
	PathStyle bool
	// AccessKey and SecretKey are optional static credentials; when empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// NewS3Store creates an S3Store from the given options.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts = append(loadOpts, awsconfig.WithRegion(region))

	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	if opts.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{client: s3.NewFromConfig(cfg, s3Opts...), bucket: opts.Bucket}, nil
}

// NewS3StoreWithClient creates an S3Store with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewS3StoreWithClient(client S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Put uploads object data under the given key, overwriting silently if the
// key exists.
func (s *S3Store) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("%w: uploading %s: %v", mserr.ErrTransport, key, err)
	}
	return nil
}

// Get retrieves object data, optionally limited to a byte range. The second
// return value is the total object size regardless of the requested range.
func (s *S3Store) Get(ctx context.Context, bucket, key string, rng *ByteRange) (io.ReadCloser, int64, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
	}

	resp, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isS3NotFound(err) {
			return nil, 0, mserr.ErrFileNotFound.WithMessagef("file %s not found", key)
		}
		return nil, 0, fmt.Errorf("getting object %s: %w", key, err)
	}

	total := aws.ToInt64(resp.ContentLength)
	if rng != nil {
		// For ranged reads ContentLength is the range length; the total size
		// comes from the Content-Range trailer ("bytes 0-1/10").
		if t, ok := parseTotalFromContentRange(aws.ToString(resp.ContentRange)); ok {
			total = t
		}
	}
	return resp.Body, total, nil
}

// HeadInfo returns content metadata without transferring the body.
func (s *S3Store) HeadInfo(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, mserr.ErrFileNotFound.WithMessagef("file %s not found", key)
		}
		return nil, fmt.Errorf("heading object %s: %w", key, err)
	}

	info := &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ContentType:  aws.ToString(resp.ContentType),
		AcceptRanges: aws.ToString(resp.AcceptRanges),
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	if info.AcceptRanges == "" {
		info.AcceptRanges = "bytes"
	}
	return info, nil
}

// ListByPrefix returns all keys starting with prefix, following pagination.
func (s *S3Store) ListByPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	var continuation *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("listing prefix %s: %w", prefix, err)
		}
		for _, obj := range resp.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		continuation = resp.NextContinuationToken
	}
	return keys, nil
}

// DeleteMany batch-deletes the given keys. Per-key failures are logged, not
// raised; S3 treats deleting a missing key as success, matching the
// at-least-once deletion policy.
func (s *S3Store) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}

	resp, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: batch delete: %v", mserr.ErrTransport, err)
	}
	for _, e := range resp.Errors {
		slog.Warn("failed to delete object",
			"key", aws.ToString(e.Key),
			"code", aws.ToString(e.Code),
			"message", aws.ToString(e.Message))
	}
	return nil
}

// HealthCheck verifies connectivity by heading the configured bucket.
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("%w: bucket %s not accessible: %v", mserr.ErrTransport, s.bucket, err)
	}
	return nil
}

// parseTotalFromContentRange extracts the total size from a Content-Range
// value of the form "bytes 0-1/10".
func parseTotalFromContentRange(cr string) (int64, bool) {
	idx := strings.LastIndexByte(cr, '/')
	if idx < 0 || idx == len(cr)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(cr[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// isS3NotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 404 {
			return true
		}
	}
	return false
}

// Ensure S3Store implements ObjectStore at compile time.
var _ ObjectStore = (*S3Store)(nil)
