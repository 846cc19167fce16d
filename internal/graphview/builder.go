package graphview

import (
	"fmt"
	"log/slog"

	"github.com/flowscope/flowscope/pkg/schema"
)

// BuildGraph converts a workflow definition into unpositioned node and edge
// view models. Each executor maps 1:1 to a node; the start executor gets the
// distinguished start render type regardless of its declared type. Each
// transition becomes exactly one edge; parallel transitions between the same
// ordered pair (conditional branches) stay distinct here.
//
// A nil definition yields an empty graph. A transition referencing an unknown
// executor is dropped with a warning; it never fails construction.
func BuildGraph(def *schema.WorkflowDefinition, logger *slog.Logger) ([]Node, []Edge) {
	if logger == nil {
		logger = slog.Default()
	}
	if def == nil {
		return []Node{}, []Edge{}
	}

	nodes := make([]Node, 0, len(def.Executors))
	known := make(map[string]bool, len(def.Executors))

	for i := range def.Executors {
		ex := &def.Executors[i]
		if ex.ID == "" {
			logger.Warn("executor with empty id skipped", "index", i)
			continue
		}
		if known[ex.ID] {
			logger.Warn("duplicate executor id skipped", "executor_id", ex.ID)
			continue
		}
		known[ex.ID] = true

		typ := ex.Type
		if typ == "" {
			typ = schema.ExecutorTypeAgent
		}
		if ex.ID == def.StartExecutorID {
			typ = schema.ExecutorTypeStart
		}

		label := ex.Label
		if label == "" {
			label = ex.ID
		}

		nodes = append(nodes, Node{
			ID:       ex.ID,
			Type:     typ,
			Label:    label,
			State:    schema.NodeStatePending,
			AgentRef: ex.AgentRef,
		})
	}

	edges := make([]Edge, 0, len(def.Transitions))
	for i, tr := range def.Transitions {
		if !known[tr.SourceID] || !known[tr.TargetID] {
			logger.Warn("transition references unknown executor, dropped",
				"source_id", tr.SourceID, "target_id", tr.TargetID)
			continue
		}
		edges = append(edges, Edge{
			// The ordinal keeps parallel transitions between the same pair distinct.
			ID:             fmt.Sprintf("%s-%s-%d", tr.SourceID, tr.TargetID, i),
			Source:         tr.SourceID,
			Target:         tr.TargetID,
			Kind:           EdgeKindNormal,
			Style:          DefaultEdgeStyle(),
			ConditionLabel: tr.Condition,
		})
	}

	return nodes, edges
}
