package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats counts pipeline outcomes. All counters are monotonic for the
// process lifetime.
type Stats struct {
	discovered  atomic.Int64
	loaded      atomic.Int64
	quarantined atomic.Int64
	transient   atomic.Int64
	rowsLoaded  atomic.Int64
	rowsRemoved atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the loop's counters.
type StatsSnapshot struct {
	RunID             string    `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	Discovered        int64     `json:"discovered"`
	Loaded            int64     `json:"loaded"`
	Quarantined       int64     `json:"quarantined"`
	TransientFailures int64     `json:"transient_failures"`
	RowsLoaded        int64     `json:"rows_loaded"`
	RowsRemoved       int64     `json:"rows_removed"`
}

// Snapshot returns the current counters.
func (l *Loop) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		RunID:             l.runID,
		StartedAt:         l.startedAt,
		Discovered:        l.stats.discovered.Load(),
		Loaded:            l.stats.loaded.Load(),
		Quarantined:       l.stats.quarantined.Load(),
		TransientFailures: l.stats.transient.Load(),
		RowsLoaded:        l.stats.rowsLoaded.Load(),
		RowsRemoved:       l.stats.rowsRemoved.Load(),
	}
}
