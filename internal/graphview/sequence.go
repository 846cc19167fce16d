package graphview

import (
	"log/slog"

	"github.com/flowscope/flowscope/pkg/schema"
)

// SequenceAnalyzer reconstructs which edges a run actually traversed, in
// what order, and derives per-edge styling and animation from that.
type SequenceAnalyzer struct {
	logger *slog.Logger
}

// NewSequenceAnalyzer creates a SequenceAnalyzer.
func NewSequenceAnalyzer(logger *slog.Logger) *SequenceAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SequenceAnalyzer{logger: logger}
}

// ActivationSequence extracts the ordered list of executor activations from
// the event log. Agent starts and responses contribute the executor itself;
// a handoff contributes its source and target. Consecutive duplicates are
// collapsed so one executor's start+response yields a single activation.
func ActivationSequence(events []schema.RuntimeEvent) []string {
	var seq []string
	push := func(id string) {
		if id == "" {
			return
		}
		if n := len(seq); n > 0 && seq[n-1] == id {
			return
		}
		seq = append(seq, id)
	}

	for _, ev := range events {
		switch ev.Type {
		case schema.EventAgentStarted, schema.EventAgentResponded:
			push(ev.ExecutorID)
		case schema.EventHandoff:
			push(ev.SourceID)
			push(ev.TargetID)
		}
	}
	return seq
}

// edgeKey identifies an ordered source→target pair.
type edgeKey struct {
	source, target string
}

// Analyze returns a new edge list with animation and styling derived from
// the run's activation sequence and the projected executor statuses.
//
// Every consecutive activation pair is one traversal. An edge into a failed
// executor is red; into a still-running executor it is the animated
// in-flight style; into a completed executor the static traversed style.
// Untraversed edges keep the default style. When several edges connect the
// same ordered pair (conditional branches) only one is marked per
// traversal, the mark from the most recent traversal winning. A hop with no
// matching edge (non-adjacent handoff) is skipped without failing the rest
// of the analysis.
func (a *SequenceAnalyzer) Analyze(edges []Edge, events []schema.RuntimeEvent, statuses map[string]Status, animate bool) []Edge {
	out := make([]Edge, len(edges))
	index := make(map[edgeKey][]int, len(edges))
	for i, e := range edges {
		e.Animated = false
		e.Style = DefaultEdgeStyle()
		out[i] = e
		index[edgeKey{e.Source, e.Target}] = append(index[edgeKey{e.Source, e.Target}], i)
	}

	seq := ActivationSequence(events)

	// pair → edge index marked by the most recent traversal of that pair.
	marked := make(map[edgeKey]int)
	for i := 1; i < len(seq); i++ {
		key := edgeKey{seq[i-1], seq[i]}
		candidates := index[key]
		if len(candidates) == 0 {
			a.logger.Debug("activation hop has no matching edge, skipped",
				"source_id", key.source, "target_id", key.target)
			continue
		}
		marked[key] = candidates[0]
	}

	for key, idx := range marked {
		e := &out[idx]
		switch st := statuses[key.target]; st.State {
		case schema.NodeStateError:
			e.Style = EdgeStyle{Color: ColorError, Width: WidthHighlighted}
		case schema.NodeStateRunning:
			e.Style = EdgeStyle{Color: ColorInFlight, Width: WidthHighlighted}
			e.Animated = animate
		case schema.NodeStateCompleted:
			e.Style = EdgeStyle{Color: ColorTraversed, Width: WidthHighlighted}
		}
	}

	return out
}
