package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowscope/flowscope/internal/eventlog"
	"github.com/flowscope/flowscope/internal/expressions"
	"github.com/flowscope/flowscope/internal/graphview"
	"github.com/flowscope/flowscope/internal/layout"
	"github.com/flowscope/flowscope/internal/simulate"
	"github.com/flowscope/flowscope/internal/streaming"
	"github.com/flowscope/flowscope/pkg/schema"
)

// memoryRunStore satisfies RunStore for panel tests.
type memoryRunStore struct {
	mu     sync.Mutex
	runs   map[string]*eventlog.Run
	events map[string][]schema.RuntimeEvent
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{
		runs:   make(map[string]*eventlog.Run),
		events: make(map[string][]schema.RuntimeEvent),
	}
}

func (m *memoryRunStore) SaveRun(_ context.Context, run *eventlog.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memoryRunStore) GetRun(_ context.Context, runID string) (*eventlog.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	cp := *run
	return &cp, nil
}

func (m *memoryRunStore) Runs(_ context.Context, limit int) ([]*eventlog.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*eventlog.Run
	for _, run := range m.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRunStore) AppendEvent(_ context.Context, ev *schema.RuntimeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.RunID] = append(m.events[ev.RunID], *ev)
	return nil
}

func (m *memoryRunStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	delete(m.events, runID)
	return nil
}

type panelFixture struct {
	server   *Server
	sessions *Sessions
	store    *memoryRunStore
	hub      *streaming.MemoryHub
}

func newPanelFixture(t *testing.T) *panelFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := expressions.NewRegistry()
	require.NoError(t, err)

	store := newMemoryRunStore()
	hub := streaming.NewMemoryHub()
	log := eventlog.NewRunLog()
	sessions := NewSessions(log, store, hub, layout.NewLayeredEngine(), logger)

	server := NewServer(Deps{
		Sessions:  sessions,
		Store:     store,
		Hub:       hub,
		Registry:  registry,
		Simulator: simulate.NewSimulator(registry, logger),
		Logger:    logger,
	})
	return &panelFixture{server: server, sessions: sessions, store: store, hub: hub}
}

func chainDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		StartExecutorID: "triage",
		Executors: []schema.Executor{
			{ID: "triage", Type: schema.ExecutorTypeStart, Label: "Triage"},
			{ID: "research", Type: schema.ExecutorTypeAgent, Label: "Research"},
			{ID: "summarize", Type: schema.ExecutorTypeAgent, Label: "Summarize"},
		},
		Transitions: []schema.Transition{
			{SourceID: "triage", TargetID: "research"},
			{SourceID: "research", TargetID: "summarize"},
		},
		Metadata: map[string]any{"name": "research-pipeline"},
	}
}

func (f *panelFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *panelFixture) createRun(t *testing.T, runID string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/runs", map[string]any{
		"run_id":     runID,
		"definition": chainDefinition(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.RunID
}

func decodeViewModel(t *testing.T, rec *httptest.ResponseRecorder) ViewModel {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var vm ViewModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vm))
	return vm
}

func TestCreateRunAndFetchView(t *testing.T) {
	f := newPanelFixture(t)
	runID := f.createRun(t, "run-1")
	assert.Equal(t, "run-1", runID)

	vm := decodeViewModel(t, f.do(t, http.MethodGet, "/api/runs/run-1/view", nil))
	assert.Len(t, vm.Nodes, 3)
	assert.Len(t, vm.Edges, 2)
	for _, n := range vm.Nodes {
		assert.Equal(t, schema.NodeStatePending, n.State)
	}
}

func TestCreateRunGeneratesID(t *testing.T) {
	f := newPanelFixture(t)
	runID := f.createRun(t, "")
	assert.NotEmpty(t, runID)
}

func TestCreateRunDuplicateConflicts(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	rec := f.do(t, http.MethodPost, "/api/runs", map[string]any{
		"run_id":     "run-1",
		"definition": chainDefinition(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRunRejectsInvalidDefinition(t *testing.T) {
	f := newPanelFixture(t)
	def := chainDefinition()
	def.StartExecutorID = "ghost"

	rec := f.do(t, http.MethodPost, "/api/runs", map[string]any{"definition": def})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIngestEventsUpdatesView(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	rec := f.do(t, http.MethodPost, "/api/runs/run-1/events", map[string]any{
		"events": []schema.RuntimeEvent{
			{Type: schema.EventWorkflowStarted},
			{Type: schema.EventAgentStarted, ExecutorID: "triage"},
			{Type: schema.EventAgentResponded, ExecutorID: "triage"},
			{Type: schema.EventHandoff, SourceID: "triage", TargetID: "research"},
			{Type: schema.EventAgentStarted, ExecutorID: "research"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	vm := decodeViewModel(t, f.do(t, http.MethodGet, "/api/runs/run-1/view", nil))
	states := make(map[string]schema.NodeState)
	for _, n := range vm.Nodes {
		states[n.ID] = n.State
	}
	assert.Equal(t, schema.NodeStateCompleted, states["triage"])
	assert.Equal(t, schema.NodeStateRunning, states["research"])
	assert.Equal(t, schema.NodeStatePending, states["summarize"])

	// The hop into research is in flight.
	var hop graphview.Edge
	for _, e := range vm.Edges {
		if e.Source == "triage" && e.Target == "research" {
			hop = e
		}
	}
	assert.Equal(t, graphview.ColorInFlight, hop.Style.Color)

	// Events were mirrored to the history store.
	f.store.mu.Lock()
	assert.Len(t, f.store.events["run-1"], 5)
	f.store.mu.Unlock()
}

func TestOutputSelectorShapesNodeOutput(t *testing.T) {
	f := newPanelFixture(t)

	sel, err := expressions.NewGoJQEngine().Selector(".message")
	require.NoError(t, err)
	f.sessions.SetOutputSelector(sel)

	f.createRun(t, "run-1")
	rec := f.do(t, http.MethodPost, "/api/runs/run-1/events", map[string]any{
		"events": []schema.RuntimeEvent{
			{Type: schema.EventAgentStarted, ExecutorID: "triage"},
			{Type: schema.EventAgentResponded, ExecutorID: "triage",
				Payload: json.RawMessage(`{"message":"routed","usage":{"tokens":12}}`)},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	vm := decodeViewModel(t, f.do(t, http.MethodGet, "/api/runs/run-1/view", nil))
	for _, n := range vm.Nodes {
		if n.ID == "triage" {
			assert.Equal(t, `"routed"`, string(n.Output))
		}
	}
}

func TestIngestTracksRunStatus(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	f.do(t, http.MethodPost, "/api/runs/run-1/events", map[string]any{
		"events": []schema.RuntimeEvent{{Type: schema.EventWorkflowStarted}},
	})
	run, err := f.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusActive, run.Status)

	f.do(t, http.MethodPost, "/api/runs/run-1/events", map[string]any{
		"events": []schema.RuntimeEvent{{Type: schema.EventWorkflowCompleted}},
	})
	run, err = f.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
}

func TestClearRunResetsView(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	f.do(t, http.MethodPost, "/api/runs/run-1/events", map[string]any{
		"events": []schema.RuntimeEvent{
			{Type: schema.EventAgentStarted, ExecutorID: "triage"},
		},
	})

	rec := f.do(t, http.MethodPost, "/api/runs/run-1/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	vm := decodeViewModel(t, f.do(t, http.MethodGet, "/api/runs/run-1/view", nil))
	assert.Zero(t, vm.Events)
	for _, n := range vm.Nodes {
		assert.Equal(t, schema.NodeStatePending, n.State)
	}
	for _, e := range vm.Edges {
		assert.Equal(t, graphview.ColorDefault, e.Style.Color)
	}
}

func TestToggleQueryParams(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	vm := decodeViewModel(t, f.do(t, http.MethodGet, "/api/runs/run-1/view?consolidate=false&animate=false&direction=TB", nil))
	assert.False(t, vm.Toggles.ConsolidateBidirectional)
	assert.False(t, vm.Toggles.AnimateRun)
	assert.Equal(t, graphview.DirectionTB, vm.Toggles.Direction)

	// Overrides persist for subsequent plain fetches.
	vm = decodeViewModel(t, f.do(t, http.MethodGet, "/api/runs/run-1/view", nil))
	assert.Equal(t, graphview.DirectionTB, vm.Toggles.Direction)
}

func TestUpdateTogglesBody(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	toggles := graphview.DefaultToggles()
	toggles.ShowMinimap = true
	toggles.ConsolidateBidirectional = false

	rec := f.do(t, http.MethodPut, "/api/runs/run-1/toggles", toggles)
	vm := decodeViewModel(t, rec)
	assert.True(t, vm.Toggles.ShowMinimap)
	assert.False(t, vm.Toggles.ConsolidateBidirectional)
}

func TestAutoArrange(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	rec := f.do(t, http.MethodPost, "/api/runs/run-1/arrange", nil)
	vm := decodeViewModel(t, rec)
	assert.Len(t, vm.Nodes, 3)
}

func TestDeleteRun(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	rec := f.do(t, http.MethodDelete, "/api/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/runs/run-1/view", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := f.store.GetRun(context.Background(), "run-1")
	assert.Error(t, err)
}

func TestListRuns(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-a")
	f.createRun(t, "run-b")

	rec := f.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []eventlog.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 2)
}

func TestValidateEndpoint(t *testing.T) {
	f := newPanelFixture(t)

	rec := f.do(t, http.MethodPost, "/api/validate", map[string]any{"definition": chainDefinition()})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
}

func TestSimulateEndpoint(t *testing.T) {
	f := newPanelFixture(t)

	rec := f.do(t, http.MethodPost, "/api/simulate", map[string]any{
		"definition": chainDefinition(),
		"inputs":     map[string]any{"topic": "tides"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result simulate.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"triage", "research", "summarize"}, result.Path)
	assert.NotEmpty(t, result.Events)
}

func TestUnknownRunIs404(t *testing.T) {
	f := newPanelFixture(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/runs/ghost/view"},
		{http.MethodGet, "/api/runs/ghost/events"},
		{http.MethodPost, "/api/runs/ghost/clear"},
		{http.MethodPost, "/api/runs/ghost/arrange"},
	} {
		rec := f.do(t, route.method, route.path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestSSERunStreamsViewModels(t *testing.T) {
	f := newPanelFixture(t)
	f.createRun(t, "run-1")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/sse/runs/run-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.server.Handler().ServeHTTP(rec, req)
	}()

	// Give the subscriber time to attach, then push an event through the API.
	time.Sleep(50 * time.Millisecond)
	f.do(t, http.MethodPost, "/api/runs/run-1/events", map[string]any{
		"events": []schema.RuntimeEvent{
			{Type: schema.EventAgentStarted, ExecutorID: "triage"},
		},
	})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	// Initial frame plus one per ingested event.
	assert.GreaterOrEqual(t, bytes.Count([]byte(body), []byte("event: view")), 2)
	assert.Contains(t, body, fmt.Sprintf("%q", "run_id"))
}
