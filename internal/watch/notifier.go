package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mkline/granary/internal/logger"
)

// Notifier is the push-based Detector built on filesystem change
// notifications. Create and write events are debounced per path so a file
// arriving through several writes is announced once, after it settles.
type Notifier struct {
	dir     string
	pattern string
	settle  time.Duration
	log     *logger.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewNotifier creates a Notifier over dir.
// Parameters:
//   - dir: watched input directory.
//   - pattern: glob matched against base names.
//   - settle: debounce period after the last write before announcement.
//   - log: logger.
// Returns:
//   - *Notifier: configured notifier.
func NewNotifier(dir, pattern string, settle time.Duration, log *logger.Logger) *Notifier {
	if pattern == "" {
		pattern = "*"
	}
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Notifier{
		dir:     dir,
		pattern: pattern,
		settle:  settle,
		log:     log,
		timers:  make(map[string]*time.Timer),
	}
}

// Run watches the input directory until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context, out chan<- Event) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(n.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", n.dir, err)
	}

	log := n.log.WithField(logger.FieldComponent, "notifier")

	for {
		select {
		case <-ctx.Done():
			n.stopTimers()
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			matched, err := filepath.Match(n.pattern, filepath.Base(event.Name))
			if err != nil || !matched {
				continue
			}
			n.debounce(ctx, event.Name, out)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Watcher error")
		}
	}
}

// debounce resets the per-path timer; the announcement fires settle after
// the last create/write for the path.
func (n *Notifier) debounce(ctx context.Context, path string, out chan<- Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.timers[path]; ok {
		t.Reset(n.settle)
		return
	}
	n.timers[path] = time.AfterFunc(n.settle, func() {
		n.mu.Lock()
		delete(n.timers, path)
		n.mu.Unlock()
		n.announce(ctx, path, out)
	})
}

func (n *Notifier) announce(ctx context.Context, path string, out chan<- Event) {
	info, err := os.Stat(path)
	if err != nil {
		// File vanished between notification and stat (moved or deleted);
		// nothing to announce.
		return
	}
	ev := Event{Path: path, ModTime: info.ModTime(), Size: info.Size()}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

func (n *Notifier) stopTimers() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for path, t := range n.timers {
		t.Stop()
		delete(n.timers, path)
	}
}
