package graphview

import (
	"encoding/json"

	"github.com/flowscope/flowscope/pkg/schema"
)

// EdgeKind classifies a view-model edge for the rendering canvas.
type EdgeKind string

const (
	EdgeKindNormal        EdgeKind = "normal"
	EdgeKindBidirectional EdgeKind = "bidirectional"
)

// Edge colors understood by the rendering canvas.
const (
	ColorDefault   = "#9ca3af" // gray, not traversed
	ColorInFlight  = "#3b82f6" // blue, target still running
	ColorTraversed = "#22c55e" // green, target completed
	ColorError     = "#ef4444" // red, target failed
)

// Edge widths for default vs. highlighted edges.
const (
	WidthDefault     = 1.5
	WidthHighlighted = 2.5
)

// Point is a 2D node position in canvas coordinates (y grows downward).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is the view model for one executor, consumed by the rendering canvas.
// The ID is exactly the executor ID from the definition.
type Node struct {
	ID       string              `json:"id"`
	Type     schema.ExecutorType `json:"type"`
	Label    string              `json:"label"`
	State    schema.NodeState    `json:"state"`
	Output   json.RawMessage     `json:"output,omitempty"`
	Error    string              `json:"error,omitempty"`
	AgentRef string              `json:"agent_ref,omitempty"`
	Position Point               `json:"position"`
}

// EdgeStyle carries the stroke attributes for one edge.
type EdgeStyle struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// DefaultEdgeStyle is the style of an edge that was never traversed.
func DefaultEdgeStyle() EdgeStyle {
	return EdgeStyle{Color: ColorDefault, Width: WidthDefault}
}

// Edge is the view model for one transition, consumed by the rendering canvas.
type Edge struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	Target         string    `json:"target"`
	Kind           EdgeKind  `json:"kind"`
	Animated       bool      `json:"animated"`
	Style          EdgeStyle `json:"style"`
	ConditionLabel string    `json:"condition_label,omitempty"`
}

// Status is the projected runtime state of one executor, produced by
// folding the event log.
type Status struct {
	State  schema.NodeState `json:"state"`
	Output json.RawMessage  `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Direction selects the rank direction for hierarchical layout.
type Direction string

const (
	DirectionLR Direction = "LR"
	DirectionTB Direction = "TB"
)

// Toggles are the pure configuration inputs of the view pipeline.
// They carry no side effects; flipping one just changes what the next
// derivation produces.
type Toggles struct {
	ShowMinimap              bool      `json:"show_minimap"`
	ShowGrid                 bool      `json:"show_grid"`
	AnimateRun               bool      `json:"animate_run"`
	ConsolidateBidirectional bool      `json:"consolidate_bidirectional_edges"`
	Direction                Direction `json:"layout_direction"`
}

// DefaultToggles returns the toggle set a fresh view starts with.
func DefaultToggles() Toggles {
	return Toggles{
		AnimateRun:               true,
		ConsolidateBidirectional: true,
		Direction:                DirectionLR,
	}
}

// styleRank orders edge styles by activity for consolidation precedence:
// error > traversed > in-flight > default.
func styleRank(e Edge) int {
	switch e.Style.Color {
	case ColorError:
		return 3
	case ColorTraversed:
		return 2
	case ColorInFlight:
		return 1
	default:
		return 0
	}
}
