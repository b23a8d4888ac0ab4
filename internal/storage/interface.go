package storage

import (
	"context"
	"io"
)

// ArchiveStore is an object store holding converted artifacts for long-term
// retention after they have been loaded. Archiving is optional; when enabled
// it runs after a successful load and before input cleanup.
type ArchiveStore interface {
	// EnsureBucket creates the archive bucket if it doesn't exist.
	EnsureBucket(ctx context.Context) error

	// Upload stores an artifact under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Exists reports whether key is already archived, so a retried load
	// does not re-upload its artifact.
	Exists(ctx context.Context, key string) (bool, error)
}
