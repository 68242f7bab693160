package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist reports that no object is stored under the requested key.
// Backends wrap it so callers can probe for missing objects with errors.Is
// without inspecting backend-specific error types.
var ErrNotExist = errors.New("object does not exist")

// Storage defines the contract for object storage backends.
//
// Contract guarantees, identical across backends:
//   - Read on a missing key returns an error wrapping ErrNotExist; genuine
//     I/O or auth failures are returned as themselves.
//   - Exists never returns an error for a missing key.
//   - Write overwrites unconditionally and is effectively atomic: a reader
//     never observes a partially written object under the final key.
//   - Delete of a missing key is not an error.
type Storage interface {
	// Write stores content from the reader under the given key.
	// size is the expected content size (-1 if unknown); contentType is the
	// MIME type recorded with the object where the backend supports it.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read retrieves content for the given key. The caller closes the
	// returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether an object is stored under the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object stored under the given key.
	Delete(ctx context.Context, key string) error

	// GetURL returns a URL under which the object can be fetched. For local
	// storage this is the serving path; for S3 a presigned URL valid for the
	// given duration, or a public URL when one is configured.
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
