package graphview

import (
	"encoding/json"
	"log/slog"

	"github.com/flowscope/flowscope/pkg/schema"
)

// Projector folds a run's full event log into per-executor statuses.
// It is a pure function of the entire log: replaying the same log from
// scratch always yields the same map, so late-arriving or re-subscribed
// event lists converge without incremental bookkeeping.
type Projector struct {
	logger *slog.Logger

	// OutputSelector, when set, extracts the display output from a raw
	// response payload (e.g. a compiled jq program). Selector failures
	// degrade to the raw payload, never to a projection error.
	OutputSelector func(payload json.RawMessage) (json.RawMessage, error)
}

// NewProjector creates a Projector logging skipped events to logger.
func NewProjector(logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{logger: logger}
}

// Project folds the ordered event log into a fresh executor status map.
// State transitions are monotonic: once an executor reaches a terminal state,
// later start, response, and failure events for it are ignored, so the first
// terminal outcome sticks. Events without an executor
// id leave node state untouched; unknown event types are skipped with a
// warning, never an error.
func (p *Projector) Project(events []schema.RuntimeEvent, startExecutorID string) map[string]Status {
	statuses := make(map[string]Status)

	for _, ev := range events {
		switch ev.Type {
		case schema.EventAgentStarted, schema.EventToolCallStarted:
			id, ok := p.requireExecutor(ev)
			if !ok {
				continue
			}
			cur := statuses[id]
			if cur.State.Terminal() {
				continue
			}
			cur.State = schema.NodeStateRunning
			statuses[id] = cur

		case schema.EventAgentResponded, schema.EventToolCallCompleted:
			id, ok := p.requireExecutor(ev)
			if !ok {
				continue
			}
			// First terminal state wins. A late response for an executor
			// that already failed must not erase the recorded error.
			if statuses[id].State.Terminal() {
				continue
			}
			statuses[id] = Status{
				State:  schema.NodeStateCompleted,
				Output: p.selectOutput(ev.Payload),
			}

		case schema.EventAgentFailed, schema.EventToolCallFailed:
			id, ok := p.requireExecutor(ev)
			if !ok {
				continue
			}
			if statuses[id].State.Terminal() {
				continue
			}
			statuses[id] = Status{
				State: schema.NodeStateError,
				Error: ev.Error,
			}

		case schema.EventWorkflowStarted:
			if startExecutorID == "" {
				continue
			}
			if _, touched := statuses[startExecutorID]; !touched {
				statuses[startExecutorID] = Status{State: schema.NodeStateRunning}
			}

		case schema.EventWorkflowCompleted, schema.EventWorkflowFailed, schema.EventHandoff:
			// run-level / traversal events carry no per-node state

		default:
			p.logger.Warn("unknown event type skipped",
				"event_type", ev.Type, "sequence", ev.Sequence)
		}
	}

	return statuses
}

// requireExecutor returns the event's executor id, warning when absent.
func (p *Projector) requireExecutor(ev schema.RuntimeEvent) (string, bool) {
	if ev.ExecutorID == "" {
		p.logger.Warn("event missing executor_id skipped",
			"event_type", ev.Type, "sequence", ev.Sequence)
		return "", false
	}
	return ev.ExecutorID, true
}

func (p *Projector) selectOutput(payload json.RawMessage) json.RawMessage {
	if p.OutputSelector == nil || len(payload) == 0 {
		return payload
	}
	out, err := p.OutputSelector(payload)
	if err != nil {
		p.logger.Warn("output selector failed, keeping raw payload", "error", err)
		return payload
	}
	return out
}
