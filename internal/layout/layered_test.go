package layout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainNodes(ids ...string) []Node {
	nodes := make([]Node, len(ids))
	for i, id := range ids {
		nodes[i] = Node{ID: id}
	}
	return nodes
}

func edge(source, target string) Edge {
	return Edge{Source: source, Target: target}
}

func TestLayeredChainAdvancesAlongMainAxis(t *testing.T) {
	engine := NewLayeredEngine()
	nodes := chainNodes("a", "b", "c")
	edges := []Edge{edge("a", "b"), edge("b", "c")}

	points, err := engine.Compute(context.Background(), nodes, edges, DirLR)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Less(t, points["a"].X, points["b"].X)
	assert.Less(t, points["b"].X, points["c"].X)
	// One node per rank sits centered on the cross axis.
	assert.Equal(t, points["a"].Y, points["b"].Y)
	assert.Equal(t, points["b"].Y, points["c"].Y)
}

func TestLayeredTopBottomSwapsAxes(t *testing.T) {
	engine := NewLayeredEngine()
	nodes := chainNodes("a", "b")
	edges := []Edge{edge("a", "b")}

	points, err := engine.Compute(context.Background(), nodes, edges, DirTB)
	require.NoError(t, err)

	assert.Less(t, points["a"].Y, points["b"].Y)
	assert.Equal(t, points["a"].X, points["b"].X)
}

func TestLayeredBranchSharesRank(t *testing.T) {
	engine := NewLayeredEngine()
	nodes := chainNodes("router", "left", "right", "join")
	edges := []Edge{
		edge("router", "left"),
		edge("router", "right"),
		edge("left", "join"),
		edge("right", "join"),
	}

	points, err := engine.Compute(context.Background(), nodes, edges, DirLR)
	require.NoError(t, err)
	require.Len(t, points, 4)

	// Both branches live in the same rank, spread on the cross axis.
	assert.Equal(t, points["left"].X, points["right"].X)
	assert.NotEqual(t, points["left"].Y, points["right"].Y)
	assert.Less(t, points["router"].X, points["left"].X)
	assert.Less(t, points["left"].X, points["join"].X)
}

func TestLayeredToleratesCycle(t *testing.T) {
	engine := NewLayeredEngine()
	nodes := chainNodes("plan", "act", "review")
	edges := []Edge{
		edge("plan", "act"),
		edge("act", "review"),
		edge("review", "act"), // back edge
	}

	points, err := engine.Compute(context.Background(), nodes, edges, DirLR)
	require.NoError(t, err)
	assert.Len(t, points, 3, "every node gets placed despite the cycle")
}

func TestLayeredPureCycleStillPlacesAll(t *testing.T) {
	engine := NewLayeredEngine()
	nodes := chainNodes("a", "b")
	edges := []Edge{edge("a", "b"), edge("b", "a")}

	points, err := engine.Compute(context.Background(), nodes, edges, DirLR)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestLayeredIgnoresUnknownAndSelfEdges(t *testing.T) {
	engine := NewLayeredEngine()
	nodes := chainNodes("a", "b")
	edges := []Edge{
		edge("a", "b"),
		edge("a", "a"),
		edge("ghost", "b"),
		edge("a", "phantom"),
	}

	points, err := engine.Compute(context.Background(), nodes, edges, DirLR)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Less(t, points["a"].X, points["b"].X)
}

func TestLayeredEmptyGraph(t *testing.T) {
	engine := NewLayeredEngine()
	points, err := engine.Compute(context.Background(), nil, nil, DirLR)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestLayeredDeterministic(t *testing.T) {
	engine := NewLayeredEngine()
	nodes := chainNodes("start", "x", "y", "z", "end")
	edges := []Edge{
		edge("start", "x"),
		edge("start", "y"),
		edge("start", "z"),
		edge("x", "end"),
		edge("y", "end"),
		edge("z", "end"),
	}

	first, err := engine.Compute(context.Background(), nodes, edges, DirTB)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Compute(context.Background(), nodes, edges, DirTB)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLayeredCancelledContext(t *testing.T) {
	engine := NewLayeredEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Compute(ctx, chainNodes("a"), nil, DirLR)
	require.Error(t, err)
}
