package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/flowscope/flowscope/internal/graphview"
	"github.com/flowscope/flowscope/internal/validation"
	"github.com/flowscope/flowscope/pkg/schema"
)

// handleListRuns lists known runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}})
		return
	}

	runs, err := s.deps.Store.Runs(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleCreateRun registers a run for a workflow definition. The run ID is
// generated when the client does not supply one.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		RunID      string                     `json:"run_id"`
		Definition *schema.WorkflowDefinition `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Definition == nil {
		writeError(w, http.StatusBadRequest, "definition is required")
		return
	}

	result, err := validation.ValidateDefinition(body.Definition, s.deps.Registry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("validate definition: %v", err))
		return
	}
	if !result.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "definition is invalid",
			"issues": result.Errors,
		})
		return
	}

	runID := body.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if err := s.deps.Sessions.CreateRun(ctx, runID, body.Definition); err != nil {
		writeScopeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id":   runID,
		"warnings": result.Warnings,
	})
}

// handleDeleteRun removes a run and its stored history.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if err := s.deps.Sessions.DeleteRun(r.Context(), runID); err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "run_id": runID})
}

// handleViewModel derives and returns the current view model for a run.
// Toggle query parameters are merged into the run's configuration first.
func (s *Server) handleViewModel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	var vm *ViewModel
	var err error
	if hasToggleParams(r) {
		vm, err = s.deps.Sessions.UpdateToggles(r.Context(), runID, func(t *graphview.Toggles) {
			applyToggleParams(r, t)
		})
	} else {
		vm, err = s.deps.Sessions.ViewModel(runID)
	}
	if err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// handleUpdateToggles replaces toggles from a JSON body.
func (s *Server) handleUpdateToggles(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	var body graphview.Toggles
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	vm, err := s.deps.Sessions.UpdateToggles(r.Context(), runID, func(t *graphview.Toggles) {
		*t = body
	})
	if err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// handleAutoArrange re-runs layout for a run.
func (s *Server) handleAutoArrange(w http.ResponseWriter, r *http.Request) {
	vm, err := s.deps.Sessions.AutoArrange(r.Context(), r.PathValue("id"))
	if err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// handleListEvents returns the run's in-memory event log.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Sessions.Events(r.PathValue("id"))
	if err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleIngestEvents appends a batch of events to a run.
func (s *Server) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	var body struct {
		Events []schema.RuntimeEvent `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(body.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events is required")
		return
	}

	appended, err := s.deps.Sessions.Ingest(r.Context(), runID, body.Events)
	if err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": "true", "appended": appended})
}

// handleClearRun discards the run's event log without touching positions.
func (s *Server) handleClearRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if err := s.deps.Sessions.ClearRun(runID); err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "run_id": runID})
}

// handleValidate validates a raw definition document and returns issues.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Definition *schema.WorkflowDefinition `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Definition == nil {
		writeError(w, http.StatusBadRequest, "definition is required")
		return
	}

	result, err := validation.ValidateDefinition(body.Definition, s.deps.Registry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("validate definition: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleSimulate runs a dry-run walk and returns the synthetic event log.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Simulator == nil {
		writeError(w, http.StatusNotImplemented, "simulation is not enabled")
		return
	}

	var body struct {
		Definition *schema.WorkflowDefinition `json:"definition"`
		Inputs     map[string]any             `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Definition == nil {
		writeError(w, http.StatusBadRequest, "definition is required")
		return
	}

	result, err := s.deps.Simulator.Run(r.Context(), body.Definition, body.Inputs)
	if err != nil {
		writeScopeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeScopeError maps structured error codes onto HTTP status codes.
func writeScopeError(w http.ResponseWriter, err error) {
	var scopeErr *schema.ScopeError
	status := http.StatusInternalServerError
	if errors.As(err, &scopeErr) {
		switch scopeErr.Code {
		case schema.ErrCodeNotFound:
			status = http.StatusNotFound
		case schema.ErrCodeConflict:
			status = http.StatusConflict
		case schema.ErrCodeValidation:
			status = http.StatusBadRequest
		}
	}
	writeError(w, status, err.Error())
}
