package validation

import (
	"fmt"

	"github.com/flowscope/flowscope/internal/expressions"
	"github.com/flowscope/flowscope/pkg/schema"
)

// ValidateSemantic performs semantic analysis on a definition that already
// passed schema validation. Errors: empty/duplicate executor ids, unknown
// executor types, unknown start executor, bad condition syntax. Warnings:
// dangling transition references (the graph builder drops those per-item)
// and executors unreachable from the start.
func ValidateSemantic(def *schema.WorkflowDefinition, registry *expressions.Registry) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	ids := make(map[string]bool, len(def.Executors))
	for i, ex := range def.Executors {
		path := fmt.Sprintf("executors[%d]", i)
		if ex.ID == "" {
			result.AddError(path+".id", schema.ErrCodeValidation, "executor has empty id")
			continue
		}
		if ids[ex.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate executor id %q", ex.ID))
			continue
		}
		ids[ex.ID] = true

		if ex.Type != "" && !schema.ValidExecutorType(ex.Type) {
			result.AddError(path+".type", schema.ErrCodeValidation,
				fmt.Sprintf("executor %s has unknown type %q", ex.ID, ex.Type))
		}
	}

	if def.StartExecutorID == "" {
		result.AddError("start_executor_id", schema.ErrCodeValidation, "start_executor_id is required")
	} else if !ids[def.StartExecutorID] {
		result.AddError("start_executor_id", schema.ErrCodeValidation,
			fmt.Sprintf("start executor %q is not defined", def.StartExecutorID))
	}

	adjacency := make(map[string][]string, len(def.Transitions))
	for i, tr := range def.Transitions {
		path := fmt.Sprintf("transitions[%d]", i)
		dangling := false
		if !ids[tr.SourceID] {
			result.AddWarning(path+".source_id", schema.ErrCodeValidation,
				fmt.Sprintf("references unknown executor %q; transition will be dropped", tr.SourceID))
			dangling = true
		}
		if !ids[tr.TargetID] {
			result.AddWarning(path+".target_id", schema.ErrCodeValidation,
				fmt.Sprintf("references unknown executor %q; transition will be dropped", tr.TargetID))
			dangling = true
		}
		if !dangling {
			adjacency[tr.SourceID] = append(adjacency[tr.SourceID], tr.TargetID)
		}

		if tr.Condition != "" && registry != nil {
			if err := registry.Check(tr.Condition); err != nil {
				result.AddError(path+".condition", schema.ErrCodeValidation, err.Error())
			}
		}
	}

	for _, ex := range def.Executors {
		if ex.ID == "" || ex.ID == def.StartExecutorID {
			continue
		}
		if ids[def.StartExecutorID] && !reachable(def.StartExecutorID, ex.ID, adjacency) {
			result.AddWarning(fmt.Sprintf("executors[%s]", ex.ID), schema.ErrCodeValidation,
				fmt.Sprintf("executor %q is unreachable from the start executor", ex.ID))
		}
	}

	return result
}

// reachable walks the adjacency list from start looking for target.
func reachable(start, target string, adjacency map[string][]string) bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[id] {
			if next == target {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// ValidateDefinition runs the full pipeline: JSON Schema shape checks, then
// semantic analysis. The returned result carries warnings even on success.
func ValidateDefinition(def *schema.WorkflowDefinition, registry *expressions.Registry) (*schema.ValidationResult, error) {
	v, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	if err := v.ValidateDefinition(def); err != nil {
		result := &schema.ValidationResult{}
		result.AddError("", schema.ErrCodeValidation, err.Error())
		return result, nil
	}
	return ValidateSemantic(def, registry), nil
}
