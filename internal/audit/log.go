package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind names the pipeline milestone an event records.
type Kind string

const (
	KindWatchStart        Kind = "watch-start"
	KindConversionSuccess Kind = "conversion-success"
	KindLoadSuccess       Kind = "load-success"
	KindValidationFailure Kind = "validation-failure"
	KindParseFailure      Kind = "parse-failure"
	KindConversionFailure Kind = "conversion-failure"
	KindLoadFailure       Kind = "load-failure"
	KindTransientFailure  Kind = "transient-failure"
	KindQuarantine        Kind = "quarantine"
	KindRowsRemoved       Kind = "rows-removed"
)

// Event is one immutable, timestamped pipeline milestone.
type Event struct {
	Time     time.Time `json:"time"`
	Severity string    `json:"severity"`
	Kind     Kind      `json:"kind"`
	Artifact string    `json:"artifact,omitempty"`
	Message  string    `json:"message"`
}

// Log is the append-only audit trail: human-readable timestamped lines
// written to a durable file, plus a bounded in-memory ring for the status
// API. The file is opened O_APPEND and every event is a single formatted
// line, so concurrent appends do not interleave. Events are never mutated
// or deleted.
type Log struct {
	sink *logrus.Logger
	file io.Closer

	mu     sync.Mutex
	ring   []Event
	ringAt int
}

// Open creates (or re-opens for append) the audit log at path.
// Parameters:
//   - path: audit file path; parent directories are created.
//   - recent: capacity of the in-memory ring; values below 1 default to 256.
// Returns:
//   - *Log: ready audit log.
//   - error: non-nil if the file cannot be opened.
func Open(path string, recent int) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	sink := logrus.New()
	sink.SetOutput(f)
	sink.SetLevel(logrus.InfoLevel)
	sink.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  time.RFC3339,
		DisableColors:    true,
		DisableSorting:   false,
		QuoteEmptyFields: true,
	})

	if recent < 1 {
		recent = 256
	}

	return &Log{
		sink: sink,
		file: f,
		ring: make([]Event, 0, recent),
	}, nil
}

// Append records one audit event. Safe for concurrent use.
// Parameters:
//   - kind: milestone kind.
//   - artifact: artifact name the event concerns; may be empty.
//   - format, args: free-text message.
// Returns: none.
func (l *Log) Append(kind Kind, artifact string, format string, args ...interface{}) {
	l.append("info", kind, artifact, fmt.Sprintf(format, args...))
}

// AppendError records one failure audit event. Safe for concurrent use.
func (l *Log) AppendError(kind Kind, artifact string, format string, args ...interface{}) {
	l.append("error", kind, artifact, fmt.Sprintf(format, args...))
}

func (l *Log) append(severity string, kind Kind, artifact, message string) {
	ev := Event{
		Time:     time.Now(),
		Severity: severity,
		Kind:     kind,
		Artifact: artifact,
		Message:  message,
	}

	entry := l.sink.WithFields(logrus.Fields{
		"kind":     string(kind),
		"artifact": artifact,
	})
	if severity == "error" {
		entry.Error(message)
	} else {
		entry.Info(message)
	}

	l.mu.Lock()
	if len(l.ring) < cap(l.ring) {
		l.ring = append(l.ring, ev)
	} else {
		l.ring[l.ringAt] = ev
		l.ringAt = (l.ringAt + 1) % cap(l.ring)
	}
	l.mu.Unlock()
}

// Recent returns the buffered events oldest first.
// Parameters: none.
// Returns:
//   - []Event: copy of the in-memory ring.
func (l *Log) Recent() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, len(l.ring))
	if len(l.ring) < cap(l.ring) {
		out = append(out, l.ring...)
		return out
	}
	out = append(out, l.ring[l.ringAt:]...)
	out = append(out, l.ring[:l.ringAt]...)
	return out
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	return l.file.Close()
}
