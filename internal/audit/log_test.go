package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, 16)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()

	l.Append(KindWatchStart, "", "watching /data/incoming")
	l.Append(KindConversionSuccess, "students.csv", "converted 395 rows")
	l.AppendError(KindQuarantine, "bad.csv", "schema mismatch: missing famsize")

	events := l.Recent()
	if len(events) != 3 {
		t.Fatalf("events: got %d, want 3", len(events))
	}

	// Oldest first.
	if events[0].Kind != KindWatchStart {
		t.Errorf("first event kind: got %s", events[0].Kind)
	}
	if events[2].Kind != KindQuarantine || events[2].Severity != "error" {
		t.Errorf("last event: got %+v", events[2])
	}
	if events[1].Artifact != "students.csv" {
		t.Errorf("artifact: got %q", events[1].Artifact)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Time.Before(events[i-1].Time) {
			t.Errorf("events out of order at %d", i)
		}
	}
}

func TestRingWrapKeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()

	for i := 0; i < 10; i++ {
		l.Append(KindLoadSuccess, fmt.Sprintf("f%d.csv", i), "loaded")
	}

	events := l.Recent()
	if len(events) != 4 {
		t.Fatalf("events: got %d, want 4", len(events))
	}
	for i, ev := range events {
		want := fmt.Sprintf("f%d.csv", 6+i)
		if ev.Artifact != want {
			t.Errorf("event %d artifact: got %q, want %q", i, ev.Artifact, want)
		}
	}
}

func TestEventsPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, 8)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	l.Append(KindLoadSuccess, "students.csv", "loaded 395 rows")
	l.AppendError(KindLoadFailure, "grades.csv", "connection refused")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	content := string(raw)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "load-success") || !strings.Contains(lines[0], "students.csv") {
		t.Errorf("first line missing fields: %s", lines[0])
	}
	if !strings.Contains(lines[1], "level=error") {
		t.Errorf("second line should be error severity: %s", lines[1])
	}
}

func TestReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	for i := 0; i < 2; i++ {
		l, err := Open(path, 8)
		if err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
		l.Append(KindWatchStart, "", "run %d", i)
		if err := l.Close(); err != nil {
			t.Fatalf("Close %d failed: %v", i, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Errorf("reopen must append, not truncate: got %d lines", len(lines))
	}
}
