package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Record is the capability set a stored type must expose: a key that is
// unique within an owner's folder and an owner that scopes the folder. An
// empty owner places the record in the template's global folder.
//
// Records are serialized with encoding/json; types should use short field
// aliases with omitempty tags so default-valued fields are omitted from the
// persisted form.
type Record interface {
	ObjectKey() string
	ObjectOwner() string
}

// ServiceConfig is the full configuration surface a Service consumes
type ServiceConfig struct {
	// Bucket is the backend bucket all objects of this service live in
	Bucket string

	// FolderTemplate is the path prefix template with at most one "{0}"
	// owner placeholder
	FolderTemplate string

	// IncludesFileName marks the template as already naming a specific
	// object (one object per owner); otherwise "<key>.json" is appended
	IncludesFileName bool
}

// Service maps records of type T to JSON objects at template-derived paths in
// a single bucket. It holds no state beyond its configuration; every read and
// write goes to the backing repository.
type Service[T Record] struct {
	repo      Repository
	bucket    string
	formatter *PathFormatter
}

// NewService creates a typed object service over repo
func NewService[T Record](repo Repository, cfg ServiceConfig) (*Service[T], error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	if cfg.FolderTemplate == "" {
		return nil, ErrMissingTemplate
	}

	return &Service[T]{
		repo:      repo,
		bucket:    cfg.Bucket,
		formatter: NewPathFormatter(cfg.FolderTemplate, cfg.IncludesFileName),
	}, nil
}

// Bucket returns the bucket this service writes to
func (s *Service[T]) Bucket() string {
	return s.bucket
}

// FilePath resolves the object path a (key, owner) pair maps to
func (s *Service[T]) FilePath(key, owner string) string {
	return s.formatter.FilePath(key, owner)
}

// GetObject fetches and decodes the record stored for (key, owner). An
// absent object returns a false found flag; stored bytes that cannot be
// decoded return a SerializationError.
func (s *Service[T]) GetObject(ctx context.Context, key, owner string) (T, bool, error) {
	var zero T

	path := s.formatter.FilePath(key, owner)
	body, found, err := s.repo.Read(ctx, s.bucket, path)
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}
	defer body.Close()

	var record T
	if err := json.NewDecoder(body).Decode(&record); err != nil {
		return zero, false, &SerializationError{Path: path, Err: err}
	}
	return record, true, nil
}

// SetObject serializes record to compact JSON and upserts it at its derived
// path with content type application/json. Writing the same (key, owner)
// twice replaces the object; changing the key between writes creates a new
// object and leaves the old one in place.
func (s *Service[T]) SetObject(ctx context.Context, record T) error {
	if !s.formatter.IncludesFileName() && record.ObjectKey() == "" {
		return ErrMissingKey
	}

	path := s.formatter.FilePath(record.ObjectKey(), record.ObjectOwner())
	data, err := json.Marshal(record)
	if err != nil {
		return &SerializationError{Path: path, Err: err}
	}

	return s.repo.Upsert(ctx, s.bucket, path, JSONContentType, bytes.NewReader(data))
}

// GetKeys lists the paths of every object in owner's folder, following
// continuation tokens until the listing is exhausted
func (s *Service[T]) GetKeys(ctx context.Context, owner string) ([]string, error) {
	opts := ListOptions{
		Prefix:  s.formatter.FolderPath(owner),
		MaxKeys: MaxKeysPerPage,
	}

	var paths []string
	for {
		page, err := s.repo.ListContents(ctx, s.bucket, opts)
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Contents {
			paths = append(paths, entry.Path)
		}
		if !page.IsTruncated {
			return paths, nil
		}
		opts.ContinuationToken = page.NextContinuationToken
	}
}

// GetObjects fetches every object in owner's folder. Fetches run
// concurrently and complete in no particular order; objects that fail to
// fetch or decode are logged and excluded rather than failing the batch, so
// the result may be a partial view. Cancelling ctx stops in-flight fetches
// and excludes them the same way.
func (s *Service[T]) GetObjects(ctx context.Context, owner string) ([]T, error) {
	paths, err := s.GetKeys(ctx, owner)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []T
	)
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			record, ok := s.fetchOne(ctx, path)
			if !ok {
				return
			}
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
		}(path)
	}
	wg.Wait()

	return records, nil
}

// DeleteObject removes the object stored for (key, owner). Deleting an
// absent object is not an error.
func (s *Service[T]) DeleteObject(ctx context.Context, key, owner string) error {
	return s.repo.Delete(ctx, s.bucket, s.formatter.FilePath(key, owner))
}

// DeleteObjects removes every object in owner's folder via the backend's
// chunked batch delete. A non-nil error means at least one chunk failed.
func (s *Service[T]) DeleteObjects(ctx context.Context, owner string) error {
	paths, err := s.GetKeys(ctx, owner)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	return s.repo.DeleteMany(ctx, s.bucket, paths)
}

// fetchOne reads and decodes a single object for the fan-out read, reporting
// failures as diagnostics only
func (s *Service[T]) fetchOne(ctx context.Context, path string) (T, bool) {
	var zero T

	body, found, err := s.repo.Read(ctx, s.bucket, path)
	if err != nil {
		slog.Warn("Skipping object in batch read: fetch failed", "bucket", s.bucket, "path", path, "error", err)
		return zero, false
	}
	if !found {
		return zero, false
	}
	defer body.Close()

	var record T
	if err := json.NewDecoder(body).Decode(&record); err != nil {
		slog.Warn("Skipping object in batch read: malformed stored JSON", "bucket", s.bucket, "path", path, "error", err)
		return zero, false
	}
	return record, true
}
