package layout

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/flowscope/flowscope/pkg/schema"
)

// GraphvizEngine delegates to graphviz's dot algorithm (layered rank
// assignment with crossing minimization). The graph is laid out once per
// structural change, never per event, so an external process boundary is
// acceptable latency-wise.
type GraphvizEngine struct{}

// NewGraphvizEngine creates a GraphvizEngine.
func NewGraphvizEngine() *GraphvizEngine {
	return &GraphvizEngine{}
}

// Compute runs the dot layout and returns node positions in canvas
// coordinates. Graphviz works in points with y growing upward; positions
// are flipped against the bounding box so y grows downward for the canvas.
func (e *GraphvizEngine) Compute(ctx context.Context, nodes []Node, edges []Edge, direction string) (map[string]Point, error) {
	if len(nodes) == 0 {
		return map[string]Point{}, nil
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeLayout, "create graphviz").WithCause(err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeLayout, "create graph").WithCause(err)
	}
	defer graph.Close()

	if direction == DirLR {
		graph.SetRankDir(cgraph.LRRank)
	} else {
		graph.SetRankDir(cgraph.TBRank)
	}

	gvNodes := make(map[string]*cgraph.Node, len(nodes))
	for _, n := range nodes {
		n = sized(n)
		gvNode, nErr := graph.CreateNodeByName(n.ID)
		if nErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLayout, "create node %s", n.ID).WithCause(nErr)
		}
		gvNode.SetShape(cgraph.BoxShape)
		// graphviz sizes are in inches (72pt).
		gvNode.SetWidth(n.Width / 72.0)
		gvNode.SetHeight(n.Height / 72.0)
		gvNodes[n.ID] = gvNode
	}

	for _, ed := range edges {
		from, to := gvNodes[ed.Source], gvNodes[ed.Target]
		if from == nil || to == nil {
			continue
		}
		if _, eErr := graph.CreateEdgeByName("", from, to); eErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLayout, "create edge %s->%s", ed.Source, ed.Target).WithCause(eErr)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return nil, schema.NewError(schema.ErrCodeLayout, "dot layout").WithCause(err)
	}

	points, err := parsePositions(buf.String())
	if err != nil {
		return nil, err
	}

	// Only return positions for requested nodes.
	out := make(map[string]Point, len(nodes))
	for _, n := range nodes {
		if p, ok := points[n.ID]; ok {
			out[n.ID] = p
		}
	}
	return out, nil
}

var (
	posAttrRe = regexp.MustCompile(`\bpos="([0-9.eE+-]+),([0-9.eE+-]+)"`)
	bbAttrRe  = regexp.MustCompile(`\bbb="[0-9.eE+-]+,[0-9.eE+-]+,([0-9.eE+-]+),([0-9.eE+-]+)"`)
)

// parsePositions extracts node center positions from laid-out xdot text.
// Node statements look like `name [ ..., pos="x,y", ... ];` possibly spread
// over several lines; edge statements contain "->" and are ignored.
func parsePositions(xdot string) (map[string]Point, error) {
	// Undo string line continuations, then gather whole statements.
	xdot = strings.ReplaceAll(xdot, "\\\n", "")

	var bbHeight float64
	if m := bbAttrRe.FindStringSubmatch(xdot); m != nil {
		bbHeight, _ = strconv.ParseFloat(m[2], 64)
	}

	points := make(map[string]Point)
	var stmt strings.Builder
	for _, line := range strings.Split(xdot, "\n") {
		stmt.WriteString(strings.TrimSpace(line))
		stmt.WriteString(" ")
		if !strings.HasSuffix(strings.TrimSpace(line), ";") {
			continue
		}
		s := stmt.String()
		stmt.Reset()

		name, ok := nodeStatementName(s)
		if !ok {
			continue
		}
		m := posAttrRe.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		x, xErr := strconv.ParseFloat(m[1], 64)
		y, yErr := strconv.ParseFloat(m[2], 64)
		if xErr != nil || yErr != nil {
			continue
		}
		points[name] = Point{X: x, Y: bbHeight - y}
	}

	if len(points) == 0 {
		return nil, schema.NewError(schema.ErrCodeLayout, "no positions in dot output")
	}
	return points, nil
}

// nodeStatementName returns the subject of a node statement, or false for
// graph/edge/attribute statements.
func nodeStatementName(stmt string) (string, bool) {
	open := strings.Index(stmt, "[")
	if open < 0 {
		return "", false
	}
	head := strings.TrimSpace(stmt[:open])
	if strings.Contains(head, "->") || strings.Contains(head, "--") {
		return "", false
	}
	if strings.HasPrefix(head, "\"") && strings.HasSuffix(head, "\"") && len(head) >= 2 {
		head = strings.ReplaceAll(head[1:len(head)-1], `\"`, `"`)
	}
	switch head {
	case "", "graph", "node", "edge", "digraph", "{", "}":
		return "", false
	}
	if strings.ContainsAny(head, "{}=") {
		return "", false
	}
	return head, true
}
