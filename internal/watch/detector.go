package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Event announces one candidate input artifact. The same file may be
// announced more than once (duplicate notifications, repeated scans); the
// consumer deduplicates by Identity.
type Event struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Identity returns the stable artifact key used for dedup and recovery:
// base name plus modification timestamp.
func (e Event) Identity() string {
	return fmt.Sprintf("%s@%d", filepath.Base(e.Path), e.ModTime.Unix())
}

// Detector is a pluggable arrival-detection capability. Push notification
// delivery is not guaranteed under all deployment environments, so a
// poll-based Scanner can run alongside (or instead of) the push Notifier,
// feeding the same channel.
type Detector interface {
	// Run blocks until ctx is cancelled, sending discovered artifacts to
	// out. Implementations must not close out; several detectors may share
	// the channel.
	Run(ctx context.Context, out chan<- Event) error
}
