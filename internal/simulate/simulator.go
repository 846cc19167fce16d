// Package simulate walks a workflow definition without executing any real
// work, emitting the synthetic event log a run of that shape would produce.
// The output feeds the view pipeline so a graph can be previewed before
// any agent is invoked.
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowscope/flowscope/internal/expressions"
	"github.com/flowscope/flowscope/internal/logging"
	"github.com/flowscope/flowscope/pkg/schema"
)

// DefaultMaxHops bounds a dry run so cyclic definitions terminate.
const DefaultMaxHops = 50

// Simulator emits synthetic event logs for workflow definitions.
type Simulator struct {
	registry *expressions.Registry
	logger   *slog.Logger

	// MaxHops caps the number of executor activations in one dry run.
	MaxHops int
}

// NewSimulator creates a Simulator evaluating transition conditions through
// the given expression registry.
func NewSimulator(registry *expressions.Registry, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		registry: registry,
		logger:   logger,
		MaxHops:  DefaultMaxHops,
	}
}

// Result is one finished dry run.
type Result struct {
	RunID  string                `json:"run_id"`
	Events []schema.RuntimeEvent `json:"events"`
	Path   []string              `json:"path"` // executor IDs in activation order
}

// Run walks the definition from its start executor, evaluating transition
// conditions against the provided input bindings, and returns the synthetic
// event log. Each activated executor contributes a started and a responded
// event; each taken transition contributes a handoff. A condition that
// fails to evaluate counts as false and is logged, never fatal.
func (s *Simulator) Run(ctx context.Context, def *schema.WorkflowDefinition, inputs map[string]any) (*Result, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}
	start := def.Executor(def.StartExecutorID)
	if start == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"start executor %q is not defined", def.StartExecutorID)
	}

	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.LogWith(ctx, s.logger)

	res := &Result{RunID: runID}
	now := time.Now().UTC()
	seq := int64(0)
	emit := func(ev schema.RuntimeEvent) {
		seq++
		ev.RunID = runID
		ev.Sequence = seq
		ev.Timestamp = now.Add(time.Duration(seq) * time.Millisecond)
		res.Events = append(res.Events, ev)
	}

	emit(schema.RuntimeEvent{Type: schema.EventWorkflowStarted})

	maxHops := s.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	outputs := make(map[string]any, len(def.Executors))
	current := start
	for hops := 0; hops < maxHops; hops++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res.Path = append(res.Path, current.ID)
		payload, parsed := syntheticOutput(current)
		outputs[current.ID] = parsed

		startType, doneType := schema.EventAgentStarted, schema.EventAgentResponded
		if current.Type == schema.ExecutorTypeTool {
			startType, doneType = schema.EventToolCallStarted, schema.EventToolCallCompleted
		}
		emit(schema.RuntimeEvent{Type: startType, ExecutorID: current.ID})
		emit(schema.RuntimeEvent{Type: doneType, ExecutorID: current.ID, Payload: payload})

		next := s.nextExecutor(ctx, def, current.ID, outputs, inputs, log)
		if next == nil {
			break
		}
		emit(schema.RuntimeEvent{Type: schema.EventHandoff, SourceID: current.ID, TargetID: next.ID})
		current = next
	}

	emit(schema.RuntimeEvent{Type: schema.EventWorkflowCompleted})
	log.Info("dry run finished", "hops", len(res.Path), "events", len(res.Events))
	return res, nil
}

// nextExecutor picks the outgoing transition to follow: the first whose
// condition evaluates true, falling back to the first unconditional one.
// Returns nil when the walk should stop.
func (s *Simulator) nextExecutor(ctx context.Context, def *schema.WorkflowDefinition, fromID string, outputs, inputs map[string]any, log *slog.Logger) *schema.Executor {
	data := map[string]any{
		"outputs": outputs,
		"inputs":  inputs,
		"run":     map[string]any{},
	}

	var fallback *schema.Executor
	for _, tr := range def.Transitions {
		if tr.SourceID != fromID {
			continue
		}
		target := def.Executor(tr.TargetID)
		if target == nil {
			continue
		}
		if tr.Condition == "" {
			if fallback == nil {
				fallback = target
			}
			continue
		}
		ok, err := s.registry.EvaluateBool(ctx, tr.Condition, data)
		if err != nil {
			log.Warn("transition condition failed, treated as false",
				"source_id", tr.SourceID, "target_id", tr.TargetID, "error", err)
			continue
		}
		if ok {
			return target
		}
	}
	return fallback
}

// syntheticOutput fabricates a small response payload for one executor.
func syntheticOutput(ex *schema.Executor) (json.RawMessage, map[string]any) {
	parsed := map[string]any{
		"executor":  ex.ID,
		"simulated": true,
	}
	raw, err := json.Marshal(parsed)
	if err != nil {
		raw = json.RawMessage(fmt.Sprintf(`{"executor":%q,"simulated":true}`, ex.ID))
	}
	return raw, parsed
}
