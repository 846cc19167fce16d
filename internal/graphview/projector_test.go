package graphview

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowscope/flowscope/pkg/schema"
)

func ev(eventType, executorID string) schema.RuntimeEvent {
	return schema.RuntimeEvent{Type: eventType, ExecutorID: executorID}
}

func handoff(source, target string) schema.RuntimeEvent {
	return schema.RuntimeEvent{Type: schema.EventHandoff, SourceID: source, TargetID: target}
}

func TestProjectLifecycle(t *testing.T) {
	p := NewProjector(nil)
	events := []schema.RuntimeEvent{
		{Type: schema.EventWorkflowStarted},
		ev(schema.EventAgentStarted, "triage"),
		{Type: schema.EventAgentResponded, ExecutorID: "triage", Payload: json.RawMessage(`{"answer":42}`)},
		ev(schema.EventAgentStarted, "research"),
	}

	statuses := p.Project(events, "triage")

	require.Contains(t, statuses, "triage")
	assert.Equal(t, schema.NodeStateCompleted, statuses["triage"].State)
	assert.JSONEq(t, `{"answer":42}`, string(statuses["triage"].Output))
	assert.Equal(t, schema.NodeStateRunning, statuses["research"].State)
}

func TestProjectMonotonicNoDowngrade(t *testing.T) {
	p := NewProjector(nil)
	events := []schema.RuntimeEvent{
		ev(schema.EventAgentStarted, "a"),
		ev(schema.EventAgentResponded, "a"),
		// Stray start after completion must not downgrade the node.
		ev(schema.EventAgentStarted, "a"),
	}
	statuses := p.Project(events, "")
	assert.Equal(t, schema.NodeStateCompleted, statuses["a"].State)
}

func TestProjectErrorOverridesAndStores(t *testing.T) {
	p := NewProjector(nil)
	events := []schema.RuntimeEvent{
		ev(schema.EventToolCallStarted, "search"),
		{Type: schema.EventToolCallFailed, ExecutorID: "search", Error: "rate limited"},
		ev(schema.EventToolCallStarted, "search"),
	}
	statuses := p.Project(events, "")
	assert.Equal(t, schema.NodeStateError, statuses["search"].State)
	assert.Equal(t, "rate limited", statuses["search"].Error)
}

func TestProjectFirstTerminalStateSticks(t *testing.T) {
	p := NewProjector(nil)

	// A late response after a failure keeps the error.
	statuses := p.Project([]schema.RuntimeEvent{
		ev(schema.EventAgentStarted, "a"),
		{Type: schema.EventAgentFailed, ExecutorID: "a", Error: "boom"},
		{Type: schema.EventAgentResponded, ExecutorID: "a", Payload: json.RawMessage(`"late"`)},
	}, "")
	assert.Equal(t, schema.NodeStateError, statuses["a"].State)
	assert.Equal(t, "boom", statuses["a"].Error)
	assert.Empty(t, statuses["a"].Output)

	// And a late failure after a response keeps the completion.
	statuses = p.Project([]schema.RuntimeEvent{
		ev(schema.EventAgentStarted, "a"),
		{Type: schema.EventAgentResponded, ExecutorID: "a", Payload: json.RawMessage(`"done"`)},
		{Type: schema.EventAgentFailed, ExecutorID: "a", Error: "boom"},
	}, "")
	assert.Equal(t, schema.NodeStateCompleted, statuses["a"].State)
	assert.Equal(t, `"done"`, string(statuses["a"].Output))
	assert.Empty(t, statuses["a"].Error)
}

func TestProjectWorkflowStartMarksStartExecutor(t *testing.T) {
	p := NewProjector(nil)

	statuses := p.Project([]schema.RuntimeEvent{{Type: schema.EventWorkflowStarted}}, "entry")
	assert.Equal(t, schema.NodeStateRunning, statuses["entry"].State)

	// Already-touched start executor is left alone.
	statuses = p.Project([]schema.RuntimeEvent{
		ev(schema.EventAgentStarted, "entry"),
		ev(schema.EventAgentResponded, "entry"),
		{Type: schema.EventWorkflowStarted},
	}, "entry")
	assert.Equal(t, schema.NodeStateCompleted, statuses["entry"].State)
}

func TestProjectSkipsMalformedEvents(t *testing.T) {
	p := NewProjector(nil)
	events := []schema.RuntimeEvent{
		{Type: "telemetry_blip"},                 // unknown kind
		{Type: schema.EventAgentStarted},         // missing executor_id
		{Type: schema.EventWorkflowCompleted},    // no per-node effect
		ev(schema.EventAgentStarted, "a"),
	}
	statuses := p.Project(events, "")
	assert.Len(t, statuses, 1)
	assert.Equal(t, schema.NodeStateRunning, statuses["a"].State)
}

func TestProjectReplayPurity(t *testing.T) {
	p := NewProjector(nil)
	events := []schema.RuntimeEvent{
		{Type: schema.EventWorkflowStarted},
		ev(schema.EventAgentStarted, "a"),
		{Type: schema.EventAgentResponded, ExecutorID: "a", Payload: json.RawMessage(`"ok"`)},
		handoff("a", "b"),
		ev(schema.EventAgentStarted, "b"),
		{Type: schema.EventAgentFailed, ExecutorID: "b", Error: "boom"},
	}

	first := p.Project(events, "a")
	second := p.Project(events, "a")
	assert.Equal(t, first, second, "projection must be a pure function of the log")
}

func TestProjectMonotonicOverPrefixes(t *testing.T) {
	p := NewProjector(nil)
	events := []schema.RuntimeEvent{
		{Type: schema.EventWorkflowStarted},
		ev(schema.EventAgentStarted, "a"),
		ev(schema.EventAgentResponded, "a"),
		ev(schema.EventAgentStarted, "b"),
		{Type: schema.EventAgentFailed, ExecutorID: "b", Error: "x"},
	}

	rank := map[schema.NodeState]int{
		schema.NodeStatePending:   0,
		schema.NodeStateRunning:   1,
		schema.NodeStateCompleted: 2,
		schema.NodeStateError:     2,
	}

	last := map[string]schema.NodeState{}
	for i := 0; i <= len(events); i++ {
		statuses := p.Project(events[:i], "a")
		for id, st := range statuses {
			if prev, ok := last[id]; ok {
				assert.GreaterOrEqual(t, rank[st.State], rank[prev],
					"state of %s regressed at prefix %d", id, i)
			}
			last[id] = st.State
		}
	}
}

func TestProjectOutputSelector(t *testing.T) {
	p := NewProjector(nil)
	p.OutputSelector = func(payload json.RawMessage) (json.RawMessage, error) {
		var body struct {
			Text json.RawMessage `json:"text"`
		}
		require.NoError(t, json.Unmarshal(payload, &body))
		return body.Text, nil
	}

	events := []schema.RuntimeEvent{
		{Type: schema.EventAgentResponded, ExecutorID: "a", Payload: json.RawMessage(`{"text":"hello","usage":{"tokens":9}}`)},
	}
	statuses := p.Project(events, "")
	assert.Equal(t, `"hello"`, string(statuses["a"].Output))
}
