package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/flowscope/flowscope/internal/expressions"
	"github.com/flowscope/flowscope/internal/simulate"
	"github.com/flowscope/flowscope/internal/streaming"
)

// Deps holds the dependencies for the panel server.
type Deps struct {
	Sessions  *Sessions
	Store     RunStore // may be nil
	Hub       streaming.EventHub
	Registry  *expressions.Registry
	Simulator *simulate.Simulator
	Logger    *slog.Logger
}

// Server exposes the run view models over a JSON API plus SSE streams.
// The rendering canvas lives in a separate client; this server only talks
// data.
type Server struct {
	deps Deps
}

// NewServer creates a panel Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Runs.
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleDeleteRun)

	// View model derivation.
	mux.HandleFunc("GET /api/runs/{id}/view", s.handleViewModel)
	mux.HandleFunc("PUT /api/runs/{id}/toggles", s.handleUpdateToggles)
	mux.HandleFunc("POST /api/runs/{id}/arrange", s.handleAutoArrange)

	// Event log.
	mux.HandleFunc("GET /api/runs/{id}/events", s.handleListEvents)
	mux.HandleFunc("POST /api/runs/{id}/events", s.handleIngestEvents)
	mux.HandleFunc("POST /api/runs/{id}/clear", s.handleClearRun)

	// Tooling.
	mux.HandleFunc("POST /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/simulate", s.handleSimulate)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/runs/{id}", s.handleSSERun)

	return mux
}
