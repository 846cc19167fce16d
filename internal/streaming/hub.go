package streaming

import (
	"context"

	"github.com/flowscope/flowscope/pkg/schema"
)

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for runtime events. An external transport
// publishes into it; the panel's SSE handlers subscribe. The hub delivers,
// the view pipeline still re-derives from the full accumulated log.
type EventHub interface {
	Publish(ctx context.Context, event schema.RuntimeEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan schema.RuntimeEvent, func(), error)
	// SubscribeRun receives every event of a single run, regardless of type.
	SubscribeRun(ctx context.Context, runID string) (<-chan schema.RuntimeEvent, func(), error)
}
