package graphview

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowscope/flowscope/pkg/schema"
)

func positionedNodes() []Node {
	return []Node{
		{ID: "a", State: schema.NodeStatePending, Position: Point{X: 10, Y: 20}},
		{ID: "b", State: schema.NodeStatePending, Position: Point{X: 30, Y: 40}},
	}
}

func TestApplyStatusesMergesAndPreservesRest(t *testing.T) {
	nodes := positionedNodes()
	statuses := map[string]Status{
		"a": {State: schema.NodeStateCompleted, Output: json.RawMessage(`"done"`)},
	}

	out := ApplyStatuses(nodes, statuses)

	require.Len(t, out, 2)
	assert.Equal(t, schema.NodeStateCompleted, out[0].State)
	assert.Equal(t, `"done"`, string(out[0].Output))
	assert.Equal(t, Point{X: 10, Y: 20}, out[0].Position)
	// Node without a status entry is untouched.
	assert.Equal(t, schema.NodeStatePending, out[1].State)

	// Input slice is never mutated.
	assert.Equal(t, schema.NodeStatePending, nodes[0].State)
}

func TestResetNodesClearsStateKeepsPositions(t *testing.T) {
	nodes := []Node{
		{ID: "a", State: schema.NodeStateError, Error: "boom", Position: Point{X: 5, Y: 6}},
		{ID: "b", State: schema.NodeStateCompleted, Output: json.RawMessage(`1`)},
	}

	out := ResetNodes(nodes)

	for _, n := range out {
		assert.Equal(t, schema.NodeStatePending, n.State)
		assert.Nil(t, n.Output)
		assert.Empty(t, n.Error)
	}
	assert.Equal(t, Point{X: 5, Y: 6}, out[0].Position)
}

func TestReduceNodesEmptyLogMeansReset(t *testing.T) {
	nodes := []Node{{ID: "a", State: schema.NodeStateRunning}}
	statuses := map[string]Status{"a": {State: schema.NodeStateCompleted}}

	out := ReduceNodes(nodes, statuses, true)
	assert.Equal(t, schema.NodeStatePending, out[0].State)

	out = ReduceNodes(nodes, statuses, false)
	assert.Equal(t, schema.NodeStateCompleted, out[0].State)
}
