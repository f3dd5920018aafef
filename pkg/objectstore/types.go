package objectstore

import (
	"io"
	"time"
)

const (
	// JSONContentType is the content type written for every record upsert
	JSONContentType = "application/json"

	// MaxKeysPerPage is the largest page a listing call returns and the
	// chunk size for batched deletes, matching the S3 per-call key limit
	MaxKeysPerPage = 1000
)

// ObjectInfo contains metadata about a stored object
type ObjectInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
	ExpiresAt    *time.Time
}

// BucketInfo describes a bucket known to a backend
type BucketInfo struct {
	Name      string
	CreatedAt time.Time
}

// ListOptions controls a single ListContents page.
//
// StartAfter and ContinuationToken are both exclusive lower bounds; when both
// are set the continuation token wins, matching S3 semantics. A MaxKeys of
// zero (or anything above MaxKeysPerPage) is treated as MaxKeysPerPage.
type ListOptions struct {
	Prefix            string
	StartAfter        string
	ContinuationToken string
	MaxKeys           int32
}

// ListEntry is one object row of a listing page
type ListEntry struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// ListPage is an ordered page of listing results. Entries are ordered
// lexicographically by path. NextContinuationToken is opaque and only valid
// when IsTruncated is true.
type ListPage struct {
	Contents              []ListEntry
	IsTruncated           bool
	NextContinuationToken string
}

// UpsertOptions holds optional per-upsert settings
type UpsertOptions struct {
	// Progress, when set, is called with the cumulative byte count as the
	// upload body is consumed
	Progress func(bytesRead int64)
}

// UpsertOption configures a single Upsert call
type UpsertOption func(*UpsertOptions)

// WithProgress reports upload progress to fn as the body is consumed
func WithProgress(fn func(bytesRead int64)) UpsertOption {
	return func(o *UpsertOptions) {
		o.Progress = fn
	}
}

// NewUpsertOptions applies opts and returns the resolved settings. Intended
// for Repository implementations.
func NewUpsertOptions(opts ...UpsertOption) UpsertOptions {
	var o UpsertOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ProgressReader wraps a reader and reports the cumulative number of bytes
// read to a callback. Used by backends to honor WithProgress.
type ProgressReader struct {
	r     io.Reader
	total int64
	fn    func(int64)
}

// NewProgressReader creates a ProgressReader around r reporting to fn
func NewProgressReader(r io.Reader, fn func(int64)) *ProgressReader {
	return &ProgressReader{r: r, fn: fn}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.total += int64(n)
		if p.fn != nil {
			p.fn(p.total)
		}
	}
	return n, err
}
