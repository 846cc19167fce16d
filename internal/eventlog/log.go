// Package eventlog holds the append-only runtime event logs that feed the
// view pipeline. The in-memory RunLog is the source of truth for a live
// run; the libsql-backed History keeps finished runs around for replay.
package eventlog

import (
	"sync"
	"time"

	"github.com/flowscope/flowscope/pkg/schema"
)

// RunLog is an append-only, per-run ordered message log. Consumers read
// whole snapshots and fold them from scratch; the log is never handed out
// as shared mutable state. Appending assigns a per-run monotonic sequence;
// the only other mutation is clearing a run wholesale.
type RunLog struct {
	mu   sync.RWMutex
	runs map[string][]schema.RuntimeEvent
}

// NewRunLog creates an empty RunLog.
func NewRunLog() *RunLog {
	return &RunLog{runs: make(map[string][]schema.RuntimeEvent)}
}

// Append adds an event to its run's log, assigning sequence and timestamp
// when unset, and returns the stored event.
func (l *RunLog) Append(ev schema.RuntimeEvent) schema.RuntimeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.runs[ev.RunID]
	ev.Sequence = int64(len(events)) + 1
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	l.runs[ev.RunID] = append(events, ev)
	return ev
}

// Snapshot returns an owned copy of a run's full ordered log.
// An unknown run yields an empty slice, not an error.
func (l *RunLog) Snapshot(runID string) []schema.RuntimeEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.runs[runID]
	out := make([]schema.RuntimeEvent, len(events))
	copy(out, events)
	return out
}

// Len returns the number of events recorded for a run.
func (l *RunLog) Len(runID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.runs[runID])
}

// Clear drops a run's log wholesale. Derived state recomputed afterwards
// deterministically resets to pending/default.
func (l *RunLog) Clear(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.runs, runID)
}

// RunIDs lists the runs currently holding events.
func (l *RunLog) RunIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.runs))
	for id := range l.runs {
		ids = append(ids, id)
	}
	return ids
}
