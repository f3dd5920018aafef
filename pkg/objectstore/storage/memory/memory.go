// Package memory provides a deterministic in-process implementation of the
// objectstore.Repository contract. It exists as a correctness oracle for
// tests: one coarse lock serializes every operation, timestamps come from an
// injectable clock, and operations against a nonexistent bucket degrade to
// no-op/absent instead of failing the way a real backend would.
package memory

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DigitalRuby/S3ObjectStore/pkg/objectstore"
)

type objectRecord struct {
	data         []byte
	contentType  string
	lastModified time.Time
	expiresAt    *time.Time
}

type bucketRecord struct {
	createdAt time.Time
	objects   map[string]objectRecord
}

// Repository is an in-memory objectstore.Repository
type Repository struct {
	mu               sync.Mutex
	now              func() time.Time
	allowBucketAdmin bool
	buckets          map[string]*bucketRecord
}

var _ objectstore.Repository = (*Repository)(nil)

// Option configures a Repository
type Option func(*Repository)

// WithClock injects the time source used for bucket and object timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// WithBucketAdmin enables or disables bucket create/delete/list. The
// in-memory backend defaults to enabled since it is a test fixture; pass
// false to exercise the restricted deployment mode.
func WithBucketAdmin(allowed bool) Option {
	return func(r *Repository) {
		r.allowBucketAdmin = allowed
	}
}

// New creates an empty in-memory repository
func New(opts ...Option) *Repository {
	r := &Repository{
		now:              time.Now,
		allowBucketAdmin: true,
		buckets:          make(map[string]*bucketRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns a snapshot of the stored bytes. Later upserts do not affect a
// stream handed out here.
func (r *Repository) Read(ctx context.Context, bucket, path string) (io.ReadCloser, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[bucket]
	if !exists {
		return nil, false, nil
	}
	obj, exists := b.objects[path]
	if !exists {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(obj.data)), true, nil
}

// TryRead is Read with faults downgraded to a logged diagnostic
func (r *Repository) TryRead(ctx context.Context, bucket, path string) (io.ReadCloser, bool) {
	body, found, err := r.Read(ctx, bucket, path)
	if err != nil {
		slog.Warn("Memory read failed", "bucket", bucket, "path", path, "error", err)
		return nil, false
	}
	return body, found
}

// Upsert stores an owned copy of body. The input reader is fully drained
// before this returns, so the caller may reuse or dispose it freely. A
// nonexistent bucket makes this a no-op.
func (r *Repository) Upsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...objectstore.UpsertOption) error {
	o := objectstore.NewUpsertOptions(opts...)
	if o.Progress != nil {
		body = objectstore.NewProgressReader(body, o.Progress)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return &objectstore.StorageError{Backend: "memory", Bucket: bucket, Path: path, Op: "upsert", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[bucket]
	if !exists {
		return nil
	}
	b.objects[path] = objectRecord{
		data:         data,
		contentType:  contentType,
		lastModified: r.now(),
	}
	return nil
}

// TryUpsert is Upsert with faults downgraded to a logged diagnostic
func (r *Repository) TryUpsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...objectstore.UpsertOption) bool {
	if err := r.Upsert(ctx, bucket, path, contentType, body, opts...); err != nil {
		slog.Warn("Memory upsert failed", "bucket", bucket, "path", path, "error", err)
		return false
	}
	return true
}

// Delete removes the object at path. Absent paths and buckets are a no-op.
func (r *Repository) Delete(ctx context.Context, bucket, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, exists := r.buckets[bucket]; exists {
		delete(b.objects, path)
	}
	return nil
}

// TryDelete is Delete with faults downgraded to a logged diagnostic
func (r *Repository) TryDelete(ctx context.Context, bucket, path string) bool {
	if err := r.Delete(ctx, bucket, path); err != nil {
		slog.Warn("Memory delete failed", "bucket", bucket, "path", path, "error", err)
		return false
	}
	return true
}

// DeleteMany removes every given path in one critical section
func (r *Repository) DeleteMany(ctx context.Context, bucket string, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[bucket]
	if !exists {
		return nil
	}
	for _, path := range paths {
		delete(b.objects, path)
	}
	return nil
}

// ListContents returns one lexicographically ordered page of objects,
// replicating the pagination contract of a real object store
func (r *Repository) ListContents(ctx context.Context, bucket string, opts objectstore.ListOptions) (*objectstore.ListPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	page := &objectstore.ListPage{}
	b, exists := r.buckets[bucket]
	if !exists {
		return page, nil
	}

	// Exclusive lower bound: the continuation token wins over StartAfter
	after := opts.StartAfter
	if opts.ContinuationToken != "" {
		after = opts.ContinuationToken
	}

	var paths []string
	for path := range b.objects {
		if opts.Prefix != "" && !strings.HasPrefix(path, opts.Prefix) {
			continue
		}
		if after != "" && path <= after {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	maxKeys := int(opts.MaxKeys)
	if maxKeys <= 0 || maxKeys > objectstore.MaxKeysPerPage {
		maxKeys = objectstore.MaxKeysPerPage
	}
	if len(paths) > maxKeys {
		paths = paths[:maxKeys]
		page.IsTruncated = true
		page.NextContinuationToken = paths[len(paths)-1]
	}

	for _, path := range paths {
		obj := b.objects[path]
		page.Contents = append(page.Contents, objectstore.ListEntry{
			Path:         path,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}
	return page, nil
}

// GetMetadata returns metadata for the object at path
func (r *Repository) GetMetadata(ctx context.Context, bucket, path string) (*objectstore.ObjectInfo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[bucket]
	if !exists {
		return nil, false, nil
	}
	obj, exists := b.objects[path]
	if !exists {
		return nil, false, nil
	}
	return &objectstore.ObjectInfo{
		Path:         path,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
		ExpiresAt:    obj.expiresAt,
	}, true, nil
}

// TryGetMetadata is GetMetadata with faults downgraded to a logged diagnostic
func (r *Repository) TryGetMetadata(ctx context.Context, bucket, path string) (*objectstore.ObjectInfo, bool) {
	info, found, err := r.GetMetadata(ctx, bucket, path)
	if err != nil {
		slog.Warn("Memory metadata lookup failed", "bucket", bucket, "path", path, "error", err)
		return nil, false
	}
	return info, found
}

// CreateBucket creates the named bucket. Creating an existing bucket is a
// no-op that preserves its contents and creation time.
func (r *Repository) CreateBucket(ctx context.Context, bucket string) error {
	if !r.allowBucketAdmin {
		return objectstore.ErrBucketAdminNotPermitted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.buckets[bucket]; exists {
		return nil
	}
	r.buckets[bucket] = &bucketRecord{
		createdAt: r.now(),
		objects:   make(map[string]objectRecord),
	}
	return nil
}

// DeleteBucket removes the named bucket and everything in it
func (r *Repository) DeleteBucket(ctx context.Context, bucket string) error {
	if !r.allowBucketAdmin {
		return objectstore.ErrBucketAdminNotPermitted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.buckets, bucket)
	return nil
}

// ListBuckets returns all buckets ordered by name
func (r *Repository) ListBuckets(ctx context.Context) ([]objectstore.BucketInfo, error) {
	if !r.allowBucketAdmin {
		return nil, objectstore.ErrBucketAdminNotPermitted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	buckets := make([]objectstore.BucketInfo, 0, len(r.buckets))
	for name, b := range r.buckets {
		buckets = append(buckets, objectstore.BucketInfo{Name: name, CreatedAt: b.createdAt})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}
