// Package s3 implements the objectstore.Repository contract against any
// S3-compatible object store using the AWS SDK v2.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-multierror"

	"github.com/DigitalRuby/S3ObjectStore/pkg/objectstore"
)

// interChunkDelay spaces out batch-delete chunk launches to stay under
// backend rate limits
const interChunkDelay = 100 * time.Millisecond

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	AccessKeyID     string // AWS access key ID; empty uses the default credential chain
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// AllowBucketAdmin enables bucket create/delete/list. Leave false in
	// production deployments so shipped code paths cannot perform
	// destructive bucket operations.
	AllowBucketAdmin bool

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm
}

// Repository is an S3-compatible implementation of the
// objectstore.Repository contract. The underlying client is safe for
// concurrent reuse across requests.
type Repository struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
}

var _ objectstore.Repository = (*Repository)(nil)

// New creates an S3-compatible storage repository
func New(ctx context.Context, config Config) (*Repository, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return NewFromClient(client, config), nil
}

// NewFromClient wraps an existing S3 client, for callers that configure the
// client themselves
func NewFromClient(client *s3.Client, config Config) *Repository {
	return &Repository{
		client:   client,
		uploader: manager.NewUploader(client),
		config:   config,
	}
}

// Read returns the object body at path. The caller must close the returned
// stream to release the connection.
func (r *Repository) Read(ctx context.Context, bucket, path string) (io.ReadCloser, bool, error) {
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, r.storageErr("read", bucket, path, err)
	}
	return result.Body, true, nil
}

// TryRead is Read with backend faults downgraded to a logged diagnostic
func (r *Repository) TryRead(ctx context.Context, bucket, path string) (io.ReadCloser, bool) {
	body, found, err := r.Read(ctx, bucket, path)
	if err != nil {
		slog.Warn("S3 read failed", "bucket", bucket, "path", path, "error", err)
		return nil, false
	}
	return body, found
}

// Upsert creates or replaces the object at path. S3 writes are atomic per
// object, so concurrent readers never observe a partial write.
func (r *Repository) Upsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...objectstore.UpsertOption) error {
	o := objectstore.NewUpsertOptions(opts...)
	if o.Progress != nil {
		body = objectstore.NewProgressReader(body, o.Progress)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(path),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	r.applySSE(input)

	if _, err := r.uploader.Upload(ctx, input); err != nil {
		return r.storageErr("upsert", bucket, path, err)
	}
	return nil
}

// TryUpsert is Upsert with backend faults downgraded to a logged diagnostic
func (r *Repository) TryUpsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...objectstore.UpsertOption) bool {
	if err := r.Upsert(ctx, bucket, path, contentType, body, opts...); err != nil {
		slog.Warn("S3 upsert failed", "bucket", bucket, "path", path, "error", err)
		return false
	}
	return true
}

// Delete removes the object at path. S3 reports success for absent keys, so
// deletion is naturally idempotent.
func (r *Repository) Delete(ctx context.Context, bucket, path string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return r.storageErr("delete", bucket, path, err)
	}
	return nil
}

// TryDelete is Delete with backend faults downgraded to a logged diagnostic
func (r *Repository) TryDelete(ctx context.Context, bucket, path string) bool {
	if err := r.Delete(ctx, bucket, path); err != nil {
		slog.Warn("S3 delete failed", "bucket", bucket, "path", path, "error", err)
		return false
	}
	return true
}

// DeleteMany removes paths in chunks of at most MaxKeysPerPage keys. Chunks
// are launched concurrently with a small pause between launches and are
// jointly awaited; failures are aggregated, so a non-nil error means at
// least one chunk failed even if others succeeded.
func (r *Repository) DeleteMany(ctx context.Context, bucket string, paths []string) error {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result *multierror.Error
	)
	for i, chunk := range chunkPaths(paths, objectstore.MaxKeysPerPage) {
		if i > 0 {
			select {
			case <-ctx.Done():
				result = multierror.Append(result, ctx.Err())
				wg.Wait()
				return result.ErrorOrNil()
			case <-time.After(interChunkDelay):
			}
		}

		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()
			if err := r.deleteChunk(ctx, bucket, chunk); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(chunk)
	}
	wg.Wait()
	return result.ErrorOrNil()
}

func (r *Repository) deleteChunk(ctx context.Context, bucket string, paths []string) error {
	identifiers := make([]types.ObjectIdentifier, 0, len(paths))
	for _, path := range paths {
		identifiers = append(identifiers, types.ObjectIdentifier{Key: aws.String(path)})
	}

	result, err := r.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: identifiers,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return r.storageErr("delete-many", bucket, paths[0], err)
	}

	var chunkErr *multierror.Error
	for _, failure := range result.Errors {
		chunkErr = multierror.Append(chunkErr, fmt.Errorf("delete %s failed: %s (%s)",
			aws.ToString(failure.Key), aws.ToString(failure.Message), aws.ToString(failure.Code)))
	}
	return chunkErr.ErrorOrNil()
}

// ListContents returns one page of objects under the given options. S3
// guarantees lexicographic key ordering within a page.
func (r *Repository) ListContents(ctx context.Context, bucket string, opts objectstore.ListOptions) (*objectstore.ListPage, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > objectstore.MaxKeysPerPage {
		maxKeys = objectstore.MaxKeysPerPage
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(maxKeys),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.StartAfter != "" {
		input.StartAfter = aws.String(opts.StartAfter)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	result, err := r.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, r.storageErr("list", bucket, opts.Prefix, err)
	}

	page := &objectstore.ListPage{
		IsTruncated:           aws.ToBool(result.IsTruncated),
		NextContinuationToken: aws.ToString(result.NextContinuationToken),
	}
	for _, obj := range result.Contents {
		page.Contents = append(page.Contents, objectstore.ListEntry{
			Path:         aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return page, nil
}

// GetMetadata returns metadata for the object at path without fetching the body
func (r *Repository) GetMetadata(ctx context.Context, bucket, path string) (*objectstore.ObjectInfo, bool, error) {
	result, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, r.storageErr("metadata", bucket, path, err)
	}

	contentType := "application/octet-stream"
	if result.ContentType != nil {
		contentType = *result.ContentType
	}

	return &objectstore.ObjectInfo{
		Path:         path,
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  contentType,
		LastModified: aws.ToTime(result.LastModified),
		ExpiresAt:    result.Expires,
	}, true, nil
}

// TryGetMetadata is GetMetadata with backend faults downgraded to a logged
// diagnostic
func (r *Repository) TryGetMetadata(ctx context.Context, bucket, path string) (*objectstore.ObjectInfo, bool) {
	info, found, err := r.GetMetadata(ctx, bucket, path)
	if err != nil {
		slog.Warn("S3 metadata lookup failed", "bucket", bucket, "path", path, "error", err)
		return nil, false
	}
	return info, found
}

// CreateBucket creates the named bucket. Requires AllowBucketAdmin; already
// existing buckets owned by the caller are treated as success.
func (r *Repository) CreateBucket(ctx context.Context, bucket string) error {
	if !r.config.AllowBucketAdmin {
		return objectstore.ErrBucketAdminNotPermitted
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	// Location constraint is required for every region except us-east-1
	if r.config.Region != "" && r.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.config.Region),
		}
	}

	_, err := r.client.CreateBucket(ctx, input)
	if err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return r.storageErr("create-bucket", bucket, "", err)
	}
	return nil
}

// DeleteBucket removes the named bucket. Requires AllowBucketAdmin; deleting
// an absent bucket is not an error.
func (r *Repository) DeleteBucket(ctx context.Context, bucket string) error {
	if !r.config.AllowBucketAdmin {
		return objectstore.ErrBucketAdminNotPermitted
	}

	_, err := r.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return r.storageErr("delete-bucket", bucket, "", err)
	}
	return nil
}

// ListBuckets returns all buckets visible to the credentials. Requires
// AllowBucketAdmin.
func (r *Repository) ListBuckets(ctx context.Context) ([]objectstore.BucketInfo, error) {
	if !r.config.AllowBucketAdmin {
		return nil, objectstore.ErrBucketAdminNotPermitted
	}

	result, err := r.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, r.storageErr("list-buckets", "", "", err)
	}

	buckets := make([]objectstore.BucketInfo, 0, len(result.Buckets))
	for _, b := range result.Buckets {
		buckets = append(buckets, objectstore.BucketInfo{
			Name:      aws.ToString(b.Name),
			CreatedAt: aws.ToTime(b.CreationDate),
		})
	}
	return buckets, nil
}

func (r *Repository) applySSE(input *s3.PutObjectInput) {
	if !r.config.EnableSSE {
		return
	}
	switch r.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if r.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(r.config.SSEKMSKeyID)
		}
	}
}

func (r *Repository) storageErr(op, bucket, path string, err error) error {
	return &objectstore.StorageError{Backend: "s3", Bucket: bucket, Path: path, Op: op, Err: err}
}

// isNotFound classifies backend errors that mean the requested object or
// bucket does not exist. HeadObject surfaces missing keys as a bare 404 with
// code "NotFound", so the smithy error code is checked alongside the modeled
// types (MinIO compatibility).
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

// chunkPaths splits paths into slices of at most size elements so no key is
// lost past the backend's batch limit
func chunkPaths(paths []string, size int) [][]string {
	var chunks [][]string
	for len(paths) > size {
		chunks = append(chunks, paths[:size])
		paths = paths[size:]
	}
	if len(paths) > 0 {
		chunks = append(chunks, paths)
	}
	return chunks
}
