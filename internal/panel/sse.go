package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowscope/flowscope/internal/streaming"
	"github.com/flowscope/flowscope/pkg/schema"
)

type subscribeFunc func(ctx context.Context) (<-chan schema.RuntimeEvent, func(), error)

// handleSSEGlobal streams every ingested event to the client.
func (s *Server) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, func(ctx context.Context) (<-chan schema.RuntimeEvent, func(), error) {
		return s.deps.Hub.Subscribe(ctx, streaming.EventFilter{})
	}, "")
}

// handleSSERun streams a freshly derived view model for one run, pushed on
// every ingested event. The client renders what it receives; it never folds
// events itself.
func (s *Server) handleSSERun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	s.serveSSE(w, r, func(ctx context.Context) (<-chan schema.RuntimeEvent, func(), error) {
		return s.deps.Hub.SubscribeRun(ctx, runID)
	}, runID)
}

// serveSSE is the common SSE implementation. With deriveRunID set, each
// event triggers a full view model derivation for that run instead of
// forwarding the raw event.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, subscribe subscribeFunc, deriveRunID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel, err := subscribe(r.Context())
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	// An initial view model so the client paints before the first event.
	if deriveRunID != "" {
		s.pushViewModel(w, flusher, deriveRunID)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if deriveRunID != "" {
				s.pushViewModel(w, flusher, deriveRunID)
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// pushViewModel derives and writes one view model frame.
func (s *Server) pushViewModel(w http.ResponseWriter, flusher http.Flusher, runID string) {
	vm, err := s.deps.Sessions.ViewModel(runID)
	if err != nil {
		return
	}
	data, err := json.Marshal(vm)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: view\ndata: %s\n\n", data)
	flusher.Flush()
}
