package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flowscope/flowscope/internal/graphview"
	"github.com/flowscope/flowscope/internal/validation"
	"github.com/flowscope/flowscope/pkg/schema"
)

// handleDescribe validates a definition, builds its graph, and lays it out.
func (s *FlowscopeServer) handleDescribe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, defErr := parseDefinition(req)
	if defErr != nil {
		return mcp.NewToolResultError(defErr.Error()), nil
	}

	result, err := validation.ValidateDefinition(def, s.registry)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", err)), nil
	}
	if !result.Valid() {
		return marshalResult(map[string]any{
			"valid":  false,
			"errors": result.Errors,
		})
	}

	view := graphview.NewView(s.engine, s.logger)
	if req.GetString("direction", "") == string(graphview.DirectionTB) {
		toggles := view.Toggles()
		toggles.Direction = graphview.DirectionTB
		view.SetToggles(ctx, toggles)
	}
	view.Reload(ctx, def)
	nodes, edges := view.Derive(nil)

	return marshalResult(map[string]any{
		"valid":    true,
		"warnings": result.Warnings,
		"nodes":    nodes,
		"edges":    edges,
	})
}

// handleState projects per-executor states from a run's stored event log.
func (s *FlowscopeServer) handleState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	if s.history == nil {
		return mcp.NewToolResultError("run history is not enabled"), nil
	}

	run, runErr := s.history.GetRun(ctx, runID)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", runErr)), nil
	}

	events, evErr := s.history.Events(ctx, runID)
	if evErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event lookup failed: %v", evErr)), nil
	}

	projector := graphview.NewProjector(s.logger)
	statuses := projector.Project(events, req.GetString("start_executor_id", ""))

	return marshalResult(map[string]any{
		"run_id": runID,
		"status": run.Status,
		"events": len(events),
		"states": statuses,
	})
}

// handleTrace returns the activation sequence and the hops between
// consecutive distinct executors.
func (s *FlowscopeServer) handleTrace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	if s.history == nil {
		return mcp.NewToolResultError("run history is not enabled"), nil
	}

	events, evErr := s.history.Events(ctx, runID)
	if evErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event lookup failed: %v", evErr)), nil
	}

	sequence := graphview.ActivationSequence(events)

	type hop struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	hops := make([]hop, 0, len(sequence))
	for i := 1; i < len(sequence); i++ {
		hops = append(hops, hop{Source: sequence[i-1], Target: sequence[i]})
	}

	return marshalResult(map[string]any{
		"run_id":   runID,
		"sequence": sequence,
		"hops":     hops,
	})
}

// handleSimulate dry-runs a definition and returns the synthetic event log.
func (s *FlowscopeServer) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.simulator == nil {
		return mcp.NewToolResultError("simulation is not enabled"), nil
	}

	def, defErr := parseDefinition(req)
	if defErr != nil {
		return mcp.NewToolResultError(defErr.Error()), nil
	}
	inputs := mcp.ParseStringMap(req, "inputs", nil)

	result, runErr := s.simulator.Run(ctx, def, inputs)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("simulation failed: %v", runErr)), nil
	}
	return marshalResult(result)
}

// handleRuns lists stored runs.
func (s *FlowscopeServer) handleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("run history is not enabled"), nil
	}

	limit := 50
	if raw := req.GetString("limit", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.history.Runs(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
	}

	if status := req.GetString("status", ""); status != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if string(run.Status) == status {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}

	return marshalResult(map[string]any{"runs": runs})
}

// parseDefinition extracts and decodes the definition argument.
func parseDefinition(req mcp.CallToolRequest) (*schema.WorkflowDefinition, error) {
	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return nil, fmt.Errorf("definition is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	return &def, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
