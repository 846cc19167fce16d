// Package layout assigns 2D coordinates to workflow graph nodes using a
// layered/hierarchical algorithm behind a narrow interface, so the
// implementation can be swapped without touching the view pipeline.
package layout

import "context"

// Rank directions.
const (
	DirLR = "LR"
	DirTB = "TB"
)

// Node is the sizing input for one graph node.
type Node struct {
	ID     string
	Width  float64
	Height float64
}

// Edge is one directed connection between two nodes.
type Edge struct {
	Source string
	Target string
}

// Point is a computed node position in canvas coordinates (y grows downward).
type Point struct {
	X float64
	Y float64
}

// Engine computes positions for a fixed (nodes, edges, direction) triple.
// The result must be deterministic within one invocation; stability across
// invocations under reordered input is not guaranteed.
type Engine interface {
	Compute(ctx context.Context, nodes []Node, edges []Edge, direction string) (map[string]Point, error)
}

// Default node box size used when a caller passes zero dimensions.
const (
	DefaultNodeWidth  = 180
	DefaultNodeHeight = 60
)

func sized(n Node) Node {
	if n.Width <= 0 {
		n.Width = DefaultNodeWidth
	}
	if n.Height <= 0 {
		n.Height = DefaultNodeHeight
	}
	return n
}
