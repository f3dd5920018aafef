// Package postgres implements the objectstore.Repository contract on top of
// PostgreSQL. Objects live as bytea rows keyed by (bucket, path), which gives
// deployments without an S3 endpoint a durable backend that honors the same
// listing and pagination semantics.
package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DigitalRuby/S3ObjectStore/pkg/objectstore"
)

const interChunkDelay = 100 * time.Millisecond

// DBTX is satisfied by both a pgx connection pool and a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements objectstore.Repository using PostgreSQL
type Repository struct {
	db               DBTX
	allowBucketAdmin bool
}

var _ objectstore.Repository = (*Repository)(nil)

// Option configures a Repository
type Option func(*Repository)

// WithBucketAdmin enables bucket create/delete/list. Defaults to disabled so
// production deployments fail fast on destructive bucket operations.
func WithBucketAdmin(allowed bool) Option {
	return func(r *Repository) {
		r.allowBucketAdmin = allowed
	}
}

// New creates a PostgreSQL repository over db
func New(db DBTX, opts ...Option) *Repository {
	r := &Repository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewWithPool creates a PostgreSQL repository over a connection pool
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Repository {
	return New(pool, opts...)
}

// Migrate creates the backing tables if they do not exist
func Migrate(ctx context.Context, db DBTX) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS object_store_buckets (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS object_store_objects (
			bucket TEXT NOT NULL REFERENCES object_store_buckets(name) ON DELETE CASCADE,
			path TEXT NOT NULL,
			data BYTEA NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
			last_modified TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ,
			PRIMARY KEY (bucket, path)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Read returns the object body at path
func (r *Repository) Read(ctx context.Context, bucket, path string) (io.ReadCloser, bool, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT data FROM object_store_objects WHERE bucket = $1 AND path = $2`,
		bucket, path).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, r.storageErr("read", bucket, path, err)
	}
	return io.NopCloser(bytes.NewReader(data)), true, nil
}

// TryRead is Read with backend faults downgraded to a logged diagnostic
func (r *Repository) TryRead(ctx context.Context, bucket, path string) (io.ReadCloser, bool) {
	body, found, err := r.Read(ctx, bucket, path)
	if err != nil {
		slog.Warn("Postgres read failed", "bucket", bucket, "path", path, "error", err)
		return nil, false
	}
	return body, found
}

// Upsert creates or replaces the object at path. The row swap is a single
// statement, so readers see either the old or the new content.
func (r *Repository) Upsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...objectstore.UpsertOption) error {
	o := objectstore.NewUpsertOptions(opts...)
	if o.Progress != nil {
		body = objectstore.NewProgressReader(body, o.Progress)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return r.storageErr("upsert", bucket, path, err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO object_store_objects (bucket, path, data, content_type, last_modified)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (bucket, path)
		 DO UPDATE SET data = EXCLUDED.data, content_type = EXCLUDED.content_type, last_modified = now()`,
		bucket, path, data, contentType)
	if err != nil {
		return r.storageErr("upsert", bucket, path, err)
	}
	return nil
}

// TryUpsert is Upsert with backend faults downgraded to a logged diagnostic
func (r *Repository) TryUpsert(ctx context.Context, bucket, path, contentType string, body io.Reader, opts ...objectstore.UpsertOption) bool {
	if err := r.Upsert(ctx, bucket, path, contentType, body, opts...); err != nil {
		slog.Warn("Postgres upsert failed", "bucket", bucket, "path", path, "error", err)
		return false
	}
	return true
}

// Delete removes the object at path; absent rows are not an error
func (r *Repository) Delete(ctx context.Context, bucket, path string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM object_store_objects WHERE bucket = $1 AND path = $2`,
		bucket, path)
	if err != nil {
		return r.storageErr("delete", bucket, path, err)
	}
	return nil
}

// TryDelete is Delete with backend faults downgraded to a logged diagnostic
func (r *Repository) TryDelete(ctx context.Context, bucket, path string) bool {
	if err := r.Delete(ctx, bucket, path); err != nil {
		slog.Warn("Postgres delete failed", "bucket", bucket, "path", path, "error", err)
		return false
	}
	return true
}

// DeleteMany removes paths in chunks of at most MaxKeysPerPage keys,
// mirroring the S3 backend's concurrency and aggregation behavior so both
// backends fail the same way
func (r *Repository) DeleteMany(ctx context.Context, bucket string, paths []string) error {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result *multierror.Error
	)
	for i := 0; i < len(paths); i += objectstore.MaxKeysPerPage {
		if i > 0 {
			select {
			case <-ctx.Done():
				result = multierror.Append(result, ctx.Err())
				wg.Wait()
				return result.ErrorOrNil()
			case <-time.After(interChunkDelay):
			}
		}

		end := i + objectstore.MaxKeysPerPage
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[i:end]

		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()
			_, err := r.db.Exec(ctx,
				`DELETE FROM object_store_objects WHERE bucket = $1 AND path = ANY($2)`,
				bucket, chunk)
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, r.storageErr("delete-many", bucket, chunk[0], err))
				mu.Unlock()
			}
		}(chunk)
	}
	wg.Wait()
	return result.ErrorOrNil()
}

// ListContents returns one page of objects ordered bytewise (COLLATE "C") to
// match S3's lexicographic key ordering
func (r *Repository) ListContents(ctx context.Context, bucket string, opts objectstore.ListOptions) (*objectstore.ListPage, error) {
	maxKeys := int(opts.MaxKeys)
	if maxKeys <= 0 || maxKeys > objectstore.MaxKeysPerPage {
		maxKeys = objectstore.MaxKeysPerPage
	}

	// Exclusive lower bound: the continuation token wins over StartAfter
	after := opts.StartAfter
	if opts.ContinuationToken != "" {
		after = opts.ContinuationToken
	}

	rows, err := r.db.Query(ctx,
		`SELECT path, octet_length(data)::bigint, last_modified
		 FROM object_store_objects
		 WHERE bucket = $1
		   AND starts_with(path, $2)
		   AND path COLLATE "C" > $3
		 ORDER BY path COLLATE "C"
		 LIMIT $4`,
		bucket, opts.Prefix, after, maxKeys+1)
	if err != nil {
		return nil, r.storageErr("list", bucket, opts.Prefix, err)
	}
	defer rows.Close()

	page := &objectstore.ListPage{}
	for rows.Next() {
		var entry objectstore.ListEntry
		if err := rows.Scan(&entry.Path, &entry.Size, &entry.LastModified); err != nil {
			return nil, r.storageErr("list", bucket, opts.Prefix, err)
		}
		page.Contents = append(page.Contents, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.storageErr("list", bucket, opts.Prefix, err)
	}

	// One extra row was requested to detect truncation
	if len(page.Contents) > maxKeys {
		page.Contents = page.Contents[:maxKeys]
		page.IsTruncated = true
		page.NextContinuationToken = page.Contents[maxKeys-1].Path
	}
	return page, nil
}

// GetMetadata returns metadata for the object at path without fetching the body
func (r *Repository) GetMetadata(ctx context.Context, bucket, path string) (*objectstore.ObjectInfo, bool, error) {
	info := &objectstore.ObjectInfo{Path: path}
	err := r.db.QueryRow(ctx,
		`SELECT octet_length(data)::bigint, content_type, last_modified, expires_at
		 FROM object_store_objects WHERE bucket = $1 AND path = $2`,
		bucket, path).Scan(&info.Size, &info.ContentType, &info.LastModified, &info.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, r.storageErr("metadata", bucket, path, err)
	}
	return info, true, nil
}

// TryGetMetadata is GetMetadata with backend faults downgraded to a logged
// diagnostic
func (r *Repository) TryGetMetadata(ctx context.Context, bucket, path string) (*objectstore.ObjectInfo, bool) {
	info, found, err := r.GetMetadata(ctx, bucket, path)
	if err != nil {
		slog.Warn("Postgres metadata lookup failed", "bucket", bucket, "path", path, "error", err)
		return nil, false
	}
	return info, found
}

// CreateBucket creates the named bucket row; creating an existing bucket is
// a no-op. Requires bucket administration to be enabled.
func (r *Repository) CreateBucket(ctx context.Context, bucket string) error {
	if !r.allowBucketAdmin {
		return objectstore.ErrBucketAdminNotPermitted
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO object_store_buckets (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		bucket)
	if err != nil {
		return r.storageErr("create-bucket", bucket, "", err)
	}
	return nil
}

// DeleteBucket removes the named bucket and, via cascade, everything in it
func (r *Repository) DeleteBucket(ctx context.Context, bucket string) error {
	if !r.allowBucketAdmin {
		return objectstore.ErrBucketAdminNotPermitted
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM object_store_buckets WHERE name = $1`, bucket)
	if err != nil {
		return r.storageErr("delete-bucket", bucket, "", err)
	}
	return nil
}

// ListBuckets returns all buckets ordered by name
func (r *Repository) ListBuckets(ctx context.Context) ([]objectstore.BucketInfo, error) {
	if !r.allowBucketAdmin {
		return nil, objectstore.ErrBucketAdminNotPermitted
	}

	rows, err := r.db.Query(ctx,
		`SELECT name, created_at FROM object_store_buckets ORDER BY name`)
	if err != nil {
		return nil, r.storageErr("list-buckets", "", "", err)
	}
	defer rows.Close()

	var buckets []objectstore.BucketInfo
	for rows.Next() {
		var b objectstore.BucketInfo
		if err := rows.Scan(&b.Name, &b.CreatedAt); err != nil {
			return nil, r.storageErr("list-buckets", "", "", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, r.storageErr("list-buckets", "", "", err)
	}
	return buckets, nil
}

func (r *Repository) storageErr(op, bucket, path string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		// Writes into a bucket that was never created
		err = fmt.Errorf("bucket %s does not exist: %w", bucket, err)
	}
	return &objectstore.StorageError{Backend: "postgres", Bucket: bucket, Path: path, Op: op, Err: err}
}
