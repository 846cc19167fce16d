package schema

// WorkflowDefinition is the JSON-serializable workflow graph format.
// Editors and stores provide it wholesale; it is never mutated in place.
// Structural edits replace the whole definition.
type WorkflowDefinition struct {
	StartExecutorID string         `json:"start_executor_id"`
	Executors       []Executor     `json:"executors"`
	Transitions     []Transition   `json:"transitions,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Executor describes a single named unit of work in the workflow graph.
type Executor struct {
	ID       string       `json:"id"`
	Type     ExecutorType `json:"type,omitempty"` // agent, human, router, condition, tool, start (default: agent)
	Label    string       `json:"label,omitempty"`
	AgentRef string       `json:"agent_ref,omitempty"` // reference into the external agent registry
}

// Transition is a directed connection between two executors.
type Transition struct {
	SourceID  string `json:"source_id"`
	TargetID  string `json:"target_id"`
	Condition string `json:"condition,omitempty"` // guard expression ("cel:" / "expr:" prefix, default CEL)
}

// ExecutorType enumerates the kinds of executors in a workflow.
type ExecutorType string

const (
	ExecutorTypeAgent     ExecutorType = "agent"
	ExecutorTypeHuman     ExecutorType = "human"
	ExecutorTypeRouter    ExecutorType = "router"
	ExecutorTypeCondition ExecutorType = "condition"
	ExecutorTypeTool      ExecutorType = "tool"
	ExecutorTypeStart     ExecutorType = "start"
)

// validExecutorTypes is the set of recognized executor types.
var validExecutorTypes = map[ExecutorType]bool{
	ExecutorTypeAgent:     true,
	ExecutorTypeHuman:     true,
	ExecutorTypeRouter:    true,
	ExecutorTypeCondition: true,
	ExecutorTypeTool:      true,
	ExecutorTypeStart:     true,
}

// ValidExecutorType reports whether t is a recognized executor type.
func ValidExecutorType(t ExecutorType) bool {
	return validExecutorTypes[t]
}

// Executor returns the executor with the given ID, or nil when absent.
func (d *WorkflowDefinition) Executor(id string) *Executor {
	for i := range d.Executors {
		if d.Executors[i].ID == id {
			return &d.Executors[i]
		}
	}
	return nil
}

// Name returns the display name from metadata, or "Workflow" when unset.
func (d *WorkflowDefinition) Name() string {
	if d.Metadata != nil {
		if name, ok := d.Metadata["name"].(string); ok && name != "" {
			return name
		}
	}
	return "Workflow"
}
