package storage

import (
	"fmt"

	"github.com/mkline/granary/internal/config"
)

// NewArchiveStore creates an ArchiveStore for the configured backend.
// Parameters:
//   - cfg: archive configuration including endpoint, credentials, and bucket.
// Returns:
//   - ArchiveStore: initialized storage client implementation.
//   - error: non-nil if the client cannot be created or the backend is unknown.
func NewArchiveStore(cfg *config.ArchiveConfig) (ArchiveStore, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinIOStore(cfg)
	case "s3", "":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
