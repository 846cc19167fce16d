package graphview

import (
	"context"
	"log/slog"

	"github.com/flowscope/flowscope/internal/layout"
	"github.com/flowscope/flowscope/pkg/schema"
)

// View derives the renderable graph for one workflow. It holds the
// structural baseline (positioned nodes, default-styled edges) rebuilt on
// definition reload or direction toggle, and derives live node state and
// edge styling from an event log as pure folds: the same log always
// produces the same output, so the hosting UI can re-invoke Derive as often
// as it re-renders.
//
// View is not safe for concurrent use; there is exactly one logical mutator
// path. Callers that serve it from multiple goroutines wrap it in their own
// lock.
type View struct {
	logger    *slog.Logger
	engine    layout.Engine
	projector *Projector
	analyzer  *SequenceAnalyzer

	toggles Toggles
	def     *schema.WorkflowDefinition
	nodes   []Node // structural baseline, positioned, all pending
	edges   []Edge // structural baseline, default styles
}

// NewView creates a View using the given layout engine.
func NewView(engine layout.Engine, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		logger:    logger,
		engine:    engine,
		projector: NewProjector(logger),
		analyzer:  NewSequenceAnalyzer(logger),
		toggles:   DefaultToggles(),
	}
}

// Projector exposes the view's projector so callers can install an output
// selector.
func (v *View) Projector() *Projector { return v.projector }

// Toggles returns the current configuration toggles.
func (v *View) Toggles() Toggles { return v.toggles }

// Definition returns the currently loaded definition (may be nil).
func (v *View) Definition() *schema.WorkflowDefinition { return v.def }

// Reload replaces the definition wholesale and rebuilds the structural
// baseline: nodes and edges from scratch, then one layout pass. Layout
// failure falls back to the previous position of each surviving node (or
// the origin for new ones) instead of failing the reload.
func (v *View) Reload(ctx context.Context, def *schema.WorkflowDefinition) {
	previous := make(map[string]Point, len(v.nodes))
	for _, n := range v.nodes {
		previous[n.ID] = n.Position
	}

	v.def = def
	v.nodes, v.edges = BuildGraph(def, v.logger)
	v.position(ctx, previous)
}

// SetToggles replaces the configuration toggles. A direction change re-runs
// layout on the structural baseline; everything else only affects the next
// derivation.
func (v *View) SetToggles(ctx context.Context, t Toggles) {
	if t.Direction == "" {
		t.Direction = DirectionLR
	}
	changed := t.Direction != v.toggles.Direction
	v.toggles = t
	if changed {
		v.AutoArrange(ctx)
	}
}

// AutoArrange forces a fresh layout pass over the structural baseline.
func (v *View) AutoArrange(ctx context.Context) {
	previous := make(map[string]Point, len(v.nodes))
	for _, n := range v.nodes {
		previous[n.ID] = n.Position
	}
	v.position(ctx, previous)
}

// Derive folds the full event log into the final view model: projected
// node states applied over the positioned baseline, and edge styling from
// sequence analysis, optionally consolidated. An empty log resets every
// node to pending and every edge to the default style.
func (v *View) Derive(events []schema.RuntimeEvent) ([]Node, []Edge) {
	startID := ""
	if v.def != nil {
		startID = v.def.StartExecutorID
	}

	statuses := v.projector.Project(events, startID)
	nodes := ReduceNodes(v.nodes, statuses, len(events) == 0)
	edges := v.analyzer.Analyze(v.edges, events, statuses, v.toggles.AnimateRun)
	edges = ConsolidateEdges(edges, v.toggles.ConsolidateBidirectional)
	return nodes, edges
}

// position runs the layout engine over the structural baseline, falling
// back to prior coordinates when the engine fails.
func (v *View) position(ctx context.Context, previous map[string]Point) {
	if len(v.nodes) == 0 {
		return
	}

	lnodes := make([]layout.Node, len(v.nodes))
	for i, n := range v.nodes {
		lnodes[i] = layout.Node{ID: n.ID}
	}
	ledges := make([]layout.Edge, len(v.edges))
	for i, e := range v.edges {
		ledges[i] = layout.Edge{Source: e.Source, Target: e.Target}
	}

	points, err := v.engine.Compute(ctx, lnodes, ledges, string(v.toggles.Direction))
	if err != nil {
		v.logger.Warn("layout failed, keeping previous positions", "error", err)
		for i := range v.nodes {
			v.nodes[i].Position = previous[v.nodes[i].ID]
		}
		return
	}

	for i := range v.nodes {
		if p, ok := points[v.nodes[i].ID]; ok {
			v.nodes[i].Position = Point{X: p.X, Y: p.Y}
		} else if prev, ok := previous[v.nodes[i].ID]; ok {
			v.nodes[i].Position = prev
		}
	}
}
