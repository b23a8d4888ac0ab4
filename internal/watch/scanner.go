package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/mkline/granary/internal/logger"
)

// Scanner is the poll-based Detector: a periodic directory scan that emits
// every matching file each pass. It is the fallback for environments where
// filesystem notifications are unreliable, and it also re-announces files
// whose processing previously failed transiently.
type Scanner struct {
	dir      string
	pattern  string
	interval time.Duration
	// settle is the minimum age a file must have before it is announced,
	// so files still being written are not picked up mid-copy.
	settle time.Duration
	log    *logger.Logger
}

// NewScanner creates a Scanner over dir.
// Parameters:
//   - dir: watched input directory.
//   - pattern: glob matched against base names, e.g. "*.csv".
//   - interval: scan period.
//   - settle: minimum file age before announcement.
//   - log: logger.
// Returns:
//   - *Scanner: configured scanner.
func NewScanner(dir, pattern string, interval, settle time.Duration, log *logger.Logger) *Scanner {
	if pattern == "" {
		pattern = "*"
	}
	return &Scanner{dir: dir, pattern: pattern, interval: interval, settle: settle, log: log}
}

// Run scans immediately, then on every tick, until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, out chan<- Event) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scan(ctx, out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.scan(ctx, out)
		}
	}
}

func (s *Scanner) scan(ctx context.Context, out chan<- Event) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.WithError(err).WithField(logger.FieldComponent, "scanner").Warn("Input directory scan failed")
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := filepath.Match(s.pattern, entry.Name())
		if err != nil || !matched {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < s.settle {
			continue
		}
		ev := Event{
			Path:    filepath.Join(s.dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
