package driven

import (
	"context"
	"io"
)

// BlobStore stores document artifacts (original uploads and canonical
// PDFs) addressed by opaque keys.
type BlobStore interface {
	// Put stores the stream and returns the storage key and the
	// SHA-256 hex digest of the content.
	Put(ctx context.Context, r io.Reader) (key string, hash string, err error)

	// Open returns a reader for a stored artifact. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Size returns the stored artifact's size in bytes.
	Size(ctx context.Context, key string) (int64, error)

	// Delete removes a stored artifact. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
}
