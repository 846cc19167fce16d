package panel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/flowscope/flowscope/internal/eventlog"
	"github.com/flowscope/flowscope/internal/graphview"
	"github.com/flowscope/flowscope/internal/layout"
	"github.com/flowscope/flowscope/internal/streaming"
	"github.com/flowscope/flowscope/pkg/schema"
)

// RunStore is the subset of the history store the panel needs.
// Satisfied by *eventlog.History.
type RunStore interface {
	SaveRun(ctx context.Context, run *eventlog.Run) error
	GetRun(ctx context.Context, runID string) (*eventlog.Run, error)
	Runs(ctx context.Context, limit int) ([]*eventlog.Run, error)
	AppendEvent(ctx context.Context, ev *schema.RuntimeEvent) error
	DeleteRun(ctx context.Context, runID string) error
}

// Sessions tracks the live view for each registered run: the in-memory
// event log, the positioned structural baseline, and the toggles. All
// mutation funnels through one mutex because View itself is not safe for
// concurrent use.
type Sessions struct {
	mu       sync.Mutex
	views    map[string]*graphview.View
	log      *eventlog.RunLog
	store    RunStore // may be nil when history is disabled
	hub      streaming.EventHub
	engine   layout.Engine
	logger   *slog.Logger
	selector func(payload json.RawMessage) (json.RawMessage, error)
}

// NewSessions creates a Sessions registry.
func NewSessions(log *eventlog.RunLog, store RunStore, hub streaming.EventHub, engine layout.Engine, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		views:  make(map[string]*graphview.View),
		log:    log,
		store:  store,
		hub:    hub,
		engine: engine,
		logger: logger,
	}
}

// SetOutputSelector installs an output selector on every future view.
func (s *Sessions) SetOutputSelector(sel func(json.RawMessage) (json.RawMessage, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selector = sel
}

// CreateRun registers a run against a workflow definition, builds and
// positions its view, and records the run in the history store.
func (s *Sessions) CreateRun(ctx context.Context, runID string, def *schema.WorkflowDefinition) error {
	if runID == "" {
		return schema.NewError(schema.ErrCodeValidation, "run_id is required")
	}
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "definition is required")
	}

	s.mu.Lock()
	if _, exists := s.views[runID]; exists {
		s.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "run %s already exists", runID)
	}
	view := graphview.NewView(s.engine, s.logger)
	if s.selector != nil {
		view.Projector().OutputSelector = s.selector
	}
	view.Reload(ctx, def)
	s.views[runID] = view
	s.mu.Unlock()

	if s.store != nil {
		run := &eventlog.Run{
			ID:           runID,
			WorkflowName: def.Name(),
			Status:       schema.RunStatusPending,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.store.SaveRun(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// Ingest appends a batch of events to the run's log, mirrors them to the
// history store, and publishes them to the hub. Returns the number of
// events appended.
func (s *Sessions) Ingest(ctx context.Context, runID string, events []schema.RuntimeEvent) (int, error) {
	if _, err := s.view(runID); err != nil {
		return 0, err
	}

	appended := 0
	for _, ev := range events {
		ev.RunID = runID
		ev = s.log.Append(ev)
		appended++

		if s.store != nil {
			if err := s.store.AppendEvent(ctx, &ev); err != nil {
				s.logger.Warn("failed to persist event",
					slog.String("run_id", runID),
					slog.String("type", ev.Type),
					slog.String("error", err.Error()),
				)
			}
		}
		if s.hub != nil {
			if err := s.hub.Publish(ctx, ev); err != nil {
				s.logger.Warn("failed to publish event", slog.String("error", err.Error()))
			}
		}
		s.trackStatus(ctx, runID, ev)
	}
	return appended, nil
}

// trackStatus advances the persisted run status on workflow lifecycle events.
func (s *Sessions) trackStatus(ctx context.Context, runID string, ev schema.RuntimeEvent) {
	if s.store == nil {
		return
	}

	var status schema.RunStatus
	switch ev.Type {
	case schema.EventWorkflowStarted:
		status = schema.RunStatusActive
	case schema.EventWorkflowCompleted:
		status = schema.RunStatusCompleted
	case schema.EventWorkflowFailed:
		status = schema.RunStatusFailed
	default:
		return
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil || run == nil {
		return
	}
	run.Status = status
	if status == schema.RunStatusCompleted || status == schema.RunStatusFailed {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.logger.Warn("failed to update run status",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}

// ViewModel derives the current view model for a run from its full event
// log.
func (s *Sessions) ViewModel(runID string) (*ViewModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveLocked(runID)
}

// UpdateToggles merges toggle overrides into the run's view. A direction
// change re-runs layout.
func (s *Sessions) UpdateToggles(ctx context.Context, runID string, apply func(*graphview.Toggles)) (*ViewModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.views[runID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	toggles := view.Toggles()
	apply(&toggles)
	view.SetToggles(ctx, toggles)
	return s.deriveLocked(runID)
}

// AutoArrange forces a fresh layout pass for the run.
func (s *Sessions) AutoArrange(ctx context.Context, runID string) (*ViewModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.views[runID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	view.AutoArrange(ctx)
	return s.deriveLocked(runID)
}

// ClearRun discards the run's event log. The next derivation returns every
// node pending and every edge default-styled; positions survive.
func (s *Sessions) ClearRun(runID string) error {
	if _, err := s.view(runID); err != nil {
		return err
	}
	s.log.Clear(runID)
	return nil
}

// DeleteRun removes the run entirely: log, view, and history record.
func (s *Sessions) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	_, ok := s.views[runID]
	delete(s.views, runID)
	s.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}

	s.log.Clear(runID)
	if s.store != nil {
		return s.store.DeleteRun(ctx, runID)
	}
	return nil
}

// Events returns the run's in-memory event log.
func (s *Sessions) Events(runID string) ([]schema.RuntimeEvent, error) {
	if _, err := s.view(runID); err != nil {
		return nil, err
	}
	return s.log.Snapshot(runID), nil
}

func (s *Sessions) view(runID string) (*graphview.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.views[runID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	return view, nil
}

// deriveLocked folds the run's log into a view model. Caller holds s.mu.
func (s *Sessions) deriveLocked(runID string) (*ViewModel, error) {
	view, ok := s.views[runID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	events := s.log.Snapshot(runID)
	nodes, edges := view.Derive(events)
	return &ViewModel{
		RunID:   runID,
		Nodes:   nodes,
		Edges:   edges,
		Toggles: view.Toggles(),
		Events:  len(events),
	}, nil
}

// ViewModel is the wire shape served to rendering clients.
type ViewModel struct {
	RunID   string            `json:"run_id"`
	Nodes   []graphview.Node  `json:"nodes"`
	Edges   []graphview.Edge  `json:"edges"`
	Toggles graphview.Toggles `json:"toggles"`
	Events  int               `json:"events"`
}
