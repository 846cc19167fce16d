package layout

import (
	"context"
	"sort"
)

// Spacing between ranks and between nodes within a rank, in canvas units.
const (
	rankSpacing = 120
	nodeSpacing = 40
)

// LayeredEngine is the in-process hierarchical layout: longest-path rank
// assignment over a Kahn traversal, then barycenter sweeps to reduce edge
// crossings within each rank. It has no external dependencies and serves as
// the fallback when the graphviz engine is unavailable.
type LayeredEngine struct{}

// NewLayeredEngine creates a LayeredEngine.
func NewLayeredEngine() *LayeredEngine {
	return &LayeredEngine{}
}

// Compute assigns a position to every node. Cycles are tolerated: back
// edges simply don't contribute to rank assignment.
func (e *LayeredEngine) Compute(ctx context.Context, nodes []Node, edges []Edge, direction string) (map[string]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return map[string]Point{}, nil
	}

	known := make(map[string]int, len(nodes)) // id → input order
	for i, n := range nodes {
		known[n.ID] = i
	}

	succ := make(map[string][]string, len(nodes))
	pred := make(map[string][]string, len(nodes))
	indeg := make(map[string]int, len(nodes))
	for _, ed := range edges {
		if _, ok := known[ed.Source]; !ok {
			continue
		}
		if _, ok := known[ed.Target]; !ok {
			continue
		}
		if ed.Source == ed.Target {
			continue
		}
		succ[ed.Source] = append(succ[ed.Source], ed.Target)
		pred[ed.Target] = append(pred[ed.Target], ed.Source)
		indeg[ed.Target]++
	}

	rank := rankNodes(nodes, succ, indeg)

	// Group into layers preserving input order, then sweep.
	maxRank := 0
	for _, r := range rank {
		if r > maxRank {
			maxRank = r
		}
	}
	layers := make([][]string, maxRank+1)
	for _, n := range nodes {
		r := rank[n.ID]
		layers[r] = append(layers[r], n.ID)
	}
	minimizeCrossings(layers, succ, pred)

	return placeNodes(nodes, layers, direction), nil
}

// rankNodes computes longest-path ranks with Kahn's algorithm. Nodes left
// over by a cycle get one rank past their deepest already-ranked
// predecessor, in input order, so every node ends up placed.
func rankNodes(nodes []Node, succ map[string][]string, indeg map[string]int) map[string]int {
	rank := make(map[string]int, len(nodes))
	remaining := make(map[string]int, len(nodes))
	var queue []string
	for _, n := range nodes {
		remaining[n.ID] = indeg[n.ID]
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
			rank[n.ID] = 0
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range succ[id] {
			if r := rank[id] + 1; r > rank[next] {
				rank[next] = r
			}
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for _, n := range nodes {
		if remaining[n.ID] <= 0 {
			continue
		}
		// Cycle member: hang it off the deepest ranked predecessor.
		r := 0
		for _, p := range predecessorsOf(n.ID, succ) {
			if pr, ok := rank[p]; ok && pr+1 > r {
				r = pr + 1
			}
		}
		rank[n.ID] = r
		remaining[n.ID] = 0
	}
	return rank
}

func predecessorsOf(id string, succ map[string][]string) []string {
	var preds []string
	for from, tos := range succ {
		for _, to := range tos {
			if to == id {
				preds = append(preds, from)
				break
			}
		}
	}
	sort.Strings(preds)
	return preds
}

// minimizeCrossings runs barycenter sweeps: each layer is reordered by the
// mean position of its neighbors in the adjacent layer, once downward and
// once upward. Two sweeps give most workflow-sized graphs a clean result.
func minimizeCrossings(layers [][]string, succ, pred map[string][]string) {
	position := func(layer []string) map[string]int {
		pos := make(map[string]int, len(layer))
		for i, id := range layer {
			pos[id] = i
		}
		return pos
	}

	reorder := func(layer []string, neighbors map[string][]string, pos map[string]int) {
		bary := make(map[string]float64, len(layer))
		for i, id := range layer {
			sum, count := 0.0, 0
			for _, nb := range neighbors[id] {
				if p, ok := pos[nb]; ok {
					sum += float64(p)
					count++
				}
			}
			if count == 0 {
				bary[id] = float64(i) // keep place when unconnected
			} else {
				bary[id] = sum / float64(count)
			}
		}
		sort.SliceStable(layer, func(a, b int) bool {
			return bary[layer[a]] < bary[layer[b]]
		})
	}

	for i := 1; i < len(layers); i++ {
		reorder(layers[i], pred, position(layers[i-1]))
	}
	for i := len(layers) - 2; i >= 0; i-- {
		reorder(layers[i], succ, position(layers[i+1]))
	}
}

// placeNodes converts layer/order assignments into coordinates. LR stacks
// ranks left to right; TB stacks them top to bottom. Each layer is centered
// on the cross axis.
func placeNodes(nodes []Node, layers [][]string, direction string) map[string]Point {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = sized(n)
	}

	points := make(map[string]Point, len(nodes))
	main := 0.0
	for _, layer := range layers {
		// Layer extent on the cross axis.
		extent := 0.0
		thickest := 0.0
		for _, id := range layer {
			n := byID[id]
			if direction == DirTB {
				extent += n.Width
				if n.Height > thickest {
					thickest = n.Height
				}
			} else {
				extent += n.Height
				if n.Width > thickest {
					thickest = n.Width
				}
			}
		}
		extent += nodeSpacing * float64(len(layer)-1)

		cross := -extent / 2
		for _, id := range layer {
			n := byID[id]
			if direction == DirTB {
				points[id] = Point{X: cross, Y: main}
				cross += n.Width + nodeSpacing
			} else {
				points[id] = Point{X: main, Y: cross}
				cross += n.Height + nodeSpacing
			}
		}
		main += thickest + rankSpacing
	}
	return points
}
