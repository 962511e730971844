// Package blob stores document artifacts on the local filesystem,
// addressed by content hash.
//
// An artifact's key is the hex SHA-256 of its bytes, fanned out into a
// two-level directory (ab/abcdef...) to keep directories small. Keys
// are derived from content only, never from upload names, so a hostile
// filename can never influence where bytes land. Writing the same
// content twice is a no-op that returns the existing key.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Store is a filesystem implementation of driven.BlobStore.
type Store struct {
	root string
}

var _ driven.BlobStore = (*Store)(nil)

// New creates a blob store rooted at dir/blobs.
func New(dir string) (*Store, error) {
	root := filepath.Join(dir, "blobs")
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Put stores the stream and returns its content-addressed key. The
// stream is written to a temp file first so a crash mid-write never
// leaves a partial artifact under a valid key.
func (s *Store) Put(ctx context.Context, r io.Reader) (string, string, error) {
	tmp, err := os.CreateTemp(s.root, "incoming-*")
	if err != nil {
		return "", "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	dest := s.pathFor(hash)

	// Same content already stored: keep the existing artifact.
	if _, err := os.Stat(dest); err == nil {
		return hash, hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return "", "", fmt.Errorf("creating blob subdirectory: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", "", fmt.Errorf("storing blob: %w", err)
	}

	return hash, hash, nil
}

// Open returns a reader for a stored artifact.
func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	return f, nil
}

// Size returns the stored artifact's size in bytes.
func (s *Store) Size(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("statting blob: %w", err)
	}
	return info.Size(), nil
}

// Delete removes a stored artifact. Deleting a missing key is not an
// error.
func (s *Store) Delete(_ context.Context, key string) error {
	err := os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}

// pathFor maps a key to its on-disk location. Keys shorter than the
// fan-out prefix are kept flat; they only occur in tests.
func (s *Store) pathFor(key string) string {
	if len(key) < 2 {
		return filepath.Join(s.root, key)
	}
	return filepath.Join(s.root, key[:2], key)
}
