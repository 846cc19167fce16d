package panel

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/flowscope/flowscope/internal/graphview"
)

// Toggle query parameters understood by the view model endpoints.
const (
	paramDirection   = "direction"
	paramConsolidate = "consolidate"
	paramAnimate     = "animate"
	paramMinimap     = "minimap"
	paramGrid        = "grid"
)

var toggleParams = []string{paramDirection, paramConsolidate, paramAnimate, paramMinimap, paramGrid}

// hasToggleParams reports whether the request carries any toggle override.
func hasToggleParams(r *http.Request) bool {
	q := r.URL.Query()
	for _, p := range toggleParams {
		if q.Has(p) {
			return true
		}
	}
	return false
}

// applyToggleParams merges present query parameters into the toggles.
// Absent parameters leave the current value untouched.
func applyToggleParams(r *http.Request, t *graphview.Toggles) {
	q := r.URL.Query()
	if q.Has(paramDirection) {
		switch q.Get(paramDirection) {
		case string(graphview.DirectionTB):
			t.Direction = graphview.DirectionTB
		default:
			t.Direction = graphview.DirectionLR
		}
	}
	if q.Has(paramConsolidate) {
		t.ConsolidateBidirectional = queryBool(r, paramConsolidate, t.ConsolidateBidirectional)
	}
	if q.Has(paramAnimate) {
		t.AnimateRun = queryBool(r, paramAnimate, t.AnimateRun)
	}
	if q.Has(paramMinimap) {
		t.ShowMinimap = queryBool(r, paramMinimap, t.ShowMinimap)
	}
	if q.Has(paramGrid) {
		t.ShowGrid = queryBool(r, paramGrid, t.ShowGrid)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryBool extracts a boolean query param with a default value.
func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
