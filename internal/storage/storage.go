package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage contains the blob storage abstraction used by the registry.
// Two implementations exist: a local filesystem directory and an
// S3-compatible object store. Keys are opaque slash-separated strings.

// ErrPresignUnsupported is returned by backends that cannot issue signed
// URLs; callers fall back to streaming the bytes themselves.
var ErrPresignUnsupported = errors.New("presigned URLs not supported by this backend")

// ErrNotExist is returned by Get when no object exists under the key.
var ErrNotExist = errors.New("object does not exist")

// PutOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the
// implementation will buffer/chunk as supported by the backend.
type PutOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Backend is the byte-storage capability required by the registry.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// ListByPrefix returns up to limit object keys starting with prefix.
	// A limit <= 0 means no bound.
	ListByPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
	// PresignGet returns a time-limited URL that can be used to download the
	// object without credentials, or ErrPresignUnsupported.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
