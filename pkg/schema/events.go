package schema

import (
	"encoding/json"
	"time"
)

// Event type constants for the runtime event log.
const (
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"

	EventAgentStarted   = "agent_started"
	EventAgentResponded = "agent_responded"
	EventAgentFailed    = "agent_failed"

	EventToolCallStarted   = "tool_call_started"
	EventToolCallCompleted = "tool_call_completed"
	EventToolCallFailed    = "tool_call_failed"

	EventHandoff = "handoff"
)

// RuntimeEvent is one immutable entry in the append-only run log: a
// timestamped record of a single lifecycle moment during a run.
// The log is only appended to or cleared wholesale, never edited.
type RuntimeEvent struct {
	RunID      string          `json:"run_id,omitempty"`
	Type       string          `json:"event_type"`
	ExecutorID string          `json:"executor_id,omitempty"`
	SourceID   string          `json:"source_id,omitempty"` // handoff origin
	TargetID   string          `json:"target_id,omitempty"` // handoff destination
	Payload    json.RawMessage `json:"payload,omitempty"`   // agent/tool output
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// ExecutorScoped reports whether this event type carries an executor ID
// that affects per-node state.
func ExecutorScoped(eventType string) bool {
	switch eventType {
	case EventAgentStarted, EventAgentResponded, EventAgentFailed,
		EventToolCallStarted, EventToolCallCompleted, EventToolCallFailed:
		return true
	}
	return false
}

// KnownEventType reports whether the event type is part of the run protocol.
func KnownEventType(eventType string) bool {
	switch eventType {
	case EventWorkflowStarted, EventWorkflowCompleted, EventWorkflowFailed,
		EventHandoff:
		return true
	}
	return ExecutorScoped(eventType)
}

// NodeState represents the derived lifecycle state of an executor node.
// Transitions are monotonic (pending → running → completed|error) outside
// of an explicit reset.
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateRunning   NodeState = "running"
	NodeStateCompleted NodeState = "completed"
	NodeStateError     NodeState = "error"
)

// Terminal reports whether the state admits no further transitions.
func (s NodeState) Terminal() bool {
	return s == NodeStateCompleted || s == NodeStateError
}

// RunStatus represents the lifecycle state of a whole run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)
