package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/flowscope/flowscope/pkg/schema"
)

// Run is the persisted summary of one run.
type Run struct {
	ID           string           `json:"id"`
	WorkflowName string           `json:"workflow_name,omitempty"`
	Status       schema.RunStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// History persists run summaries and their event logs in libSQL so a
// finished run can be replayed through the view pipeline later. It sits
// entirely outside the derivation core.
type History struct {
	db *sql.DB
}

// OpenHistory opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/history.db".
func OpenHistory(dbPath string) (*History, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error { return h.db.Close() }

// Migrate runs all pending schema migrations.
func (h *History) Migrate(ctx context.Context) error {
	return runMigrations(ctx, h.db)
}

// SaveRun inserts or updates a run summary.
func (h *History) SaveRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_name, status, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   workflow_name=excluded.workflow_name,
		   status=excluded.status,
		   completed_at=excluded.completed_at`,
		run.ID, run.WorkflowName, string(run.Status), run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "save run").WithCause(err)
	}
	return nil
}

// GetRun returns a run summary by ID.
func (h *History) GetRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{}
	var status string
	err := h.db.QueryRowContext(ctx,
		`SELECT id, workflow_name, status, created_at, completed_at FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &run.WorkflowName, &status, &run.CreatedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "get run").WithCause(err)
	}
	run.Status = schema.RunStatus(status)
	return run, nil
}

// Runs lists run summaries, newest first.
func (h *History) Runs(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, workflow_name, status, created_at, completed_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list runs").WithCause(err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var status string
		if err := rows.Scan(&run.ID, &run.WorkflowName, &status, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan run").WithCause(err)
		}
		run.Status = schema.RunStatus(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AppendEvent appends an event with a monotonically increasing per-run
// sequence. A transaction keeps the sequence read and the insert atomic.
func (h *History) AppendEvent(ctx context.Context, ev *schema.RuntimeEvent) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "begin tx").WithCause(err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, ev.RunID,
	).Scan(&seq)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "next sequence").WithCause(err)
	}
	ev.Sequence = seq

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, sequence, event_type, executor_id, source_id, target_id, payload, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, seq, ev.Type, nullStr(ev.ExecutorID), nullStr(ev.SourceID), nullStr(ev.TargetID),
		nullStr(string(ev.Payload)), nullStr(ev.Error), ev.Timestamp,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "insert event").WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return schema.NewError(schema.ErrCodeStore, "commit event").WithCause(err)
	}
	return nil
}

// Events returns a run's full event log ordered by sequence.
func (h *History) Events(ctx context.Context, runID string) ([]schema.RuntimeEvent, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT run_id, sequence, event_type, executor_id, source_id, target_id, payload, error, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY sequence ASC`, runID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "query events").WithCause(err)
	}
	defer rows.Close()

	var events []schema.RuntimeEvent
	for rows.Next() {
		var ev schema.RuntimeEvent
		var executorID, sourceID, targetID, payload, errMsg sql.NullString
		if err := rows.Scan(&ev.RunID, &ev.Sequence, &ev.Type, &executorID, &sourceID, &targetID,
			&payload, &errMsg, &ev.Timestamp); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan event").WithCause(err)
		}
		ev.ExecutorID = executorID.String
		ev.SourceID = sourceID.String
		ev.TargetID = targetID.String
		if payload.Valid && payload.String != "" {
			ev.Payload = []byte(payload.String)
		}
		ev.Error = errMsg.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteRun removes a run and its events.
func (h *History) DeleteRun(ctx context.Context, runID string) error {
	if _, err := h.db.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, runID); err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete run events").WithCause(err)
	}
	if _, err := h.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete run").WithCause(err)
	}
	return nil
}

// PruneFinishedBefore removes completed and failed runs older than the
// cutoff, returning how many runs were dropped.
func (h *History) PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx,
		`DELETE FROM run_events WHERE run_id IN (
		   SELECT id FROM runs WHERE status IN ('completed', 'failed') AND created_at < ?
		 )`, cutoff)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "prune run events").WithCause(err)
	}
	_ = res

	res, err = h.db.ExecContext(ctx,
		`DELETE FROM runs WHERE status IN ('completed', 'failed') AND created_at < ?`, cutoff)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "prune runs").WithCause(err)
	}
	return res.RowsAffected()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
