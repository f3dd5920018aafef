package objectstore

import (
	"context"
	"io"
)

// Repository defines the byte-level contract every storage backend satisfies.
//
// "Not found" is a normal outcome, surfaced as a false found flag with a nil
// error; only genuine backend faults (transport errors, permission failures,
// malformed responses) are returned as errors. The Try variants additionally
// convert backend faults into an absent/false result plus a logged
// diagnostic, for callers that treat storage errors as non-fatal.
type Repository interface {
	// Read returns the object body at path. The caller must close the
	// returned stream. Absent objects return (nil, false, nil).
	Read(ctx context.Context, bucket, path string) (io.ReadCloser, bool, error)

	// TryRead is Read with backend faults downgraded to a logged diagnostic
	TryRead(ctx context.Context, bucket, path string) (io.ReadCloser, bool)

	// Upsert creates or replaces the object at path with the full contents
	// of body. Concurrent readers see either the old or the new content,
	// never a mix.
	Upsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...UpsertOption) error

	// TryUpsert is Upsert with backend faults downgraded to a logged diagnostic
	TryUpsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...UpsertOption) bool

	// Delete removes the object at path. Deleting an absent path is not an error.
	Delete(ctx context.Context, bucket, path string) error

	// TryDelete is Delete with backend faults downgraded to a logged diagnostic
	TryDelete(ctx context.Context, bucket, path string) bool

	// DeleteMany removes the given paths, chunking internally to respect the
	// backend's per-call key limit (MaxKeysPerPage). Chunk failures are
	// aggregated; a non-nil error means at least one chunk failed even if
	// others succeeded.
	DeleteMany(ctx context.Context, bucket string, paths []string) error

	// ListContents returns one page of objects ordered lexicographically by
	// path. When the page is truncated the returned continuation token
	// fetches the next page.
	ListContents(ctx context.Context, bucket string, opts ListOptions) (*ListPage, error)

	// GetMetadata returns metadata for the object at path, or a false found
	// flag when it is absent
	GetMetadata(ctx context.Context, bucket, path string) (*ObjectInfo, bool, error)

	// TryGetMetadata is GetMetadata with backend faults downgraded to a
	// logged diagnostic
	TryGetMetadata(ctx context.Context, bucket, path string) (*ObjectInfo, bool)

	// CreateBucket creates the named bucket. Fails with
	// ErrBucketAdminNotPermitted unless the backend was built with bucket
	// administration enabled.
	CreateBucket(ctx context.Context, bucket string) error

	// DeleteBucket removes the named bucket. Same restriction as CreateBucket.
	DeleteBucket(ctx context.Context, bucket string) error

	// ListBuckets returns all buckets. Same restriction as CreateBucket.
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
}
