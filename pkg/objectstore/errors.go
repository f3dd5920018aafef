package objectstore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrBucketAdminNotPermitted indicates a bucket create/delete/list was
	// attempted against a backend that was not built with bucket
	// administration enabled. Raised before any backend call is made.
	ErrBucketAdminNotPermitted = errors.New("bucket administration not permitted in this deployment mode")

	// ErrMissingBucket indicates a service was configured without a bucket name
	ErrMissingBucket = errors.New("bucket name is required")

	// ErrMissingTemplate indicates a service was configured without a folder template
	ErrMissingTemplate = errors.New("folder template is required")

	// ErrMissingKey indicates a record with an empty key was passed to a
	// collection-style service, where the key names the stored object
	ErrMissingKey = errors.New("record key is required")

	// ErrNilRepository indicates a service was constructed without a repository
	ErrNilRepository = errors.New("storage repository is required")
)

// StorageError represents a backend fault during a storage operation.
// Absent objects are never reported as a StorageError; they surface as an
// absent value on the operation itself.
type StorageError struct {
	Backend string
	Bucket  string
	Path    string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for %s/%s on backend %s: %v", e.Op, e.Bucket, e.Path, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SerializationError represents stored bytes that could not be decoded into
// the target record type. It signals data corruption or schema drift and is
// never swallowed by single-object reads.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("stored object at %s cannot be decoded: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
