package hub

import (
	"context"
	"encoding/json"
)

// Adapter is the hub as seen by the bridge.
type Adapter interface {
	// Bootstrap opens a session and resolves service ids.
	Bootstrap(ctx context.Context) error

	// LongPoll blocks until the hub delivers events or ctx ends.
	LongPoll(ctx context.Context) (EventBatch, error)

	// DecodeEvent extracts fan, flap and window values from a batch.
	DecodeEvent(batch EventBatch) (PollResult, error)

	SetExhaustAir(ctx context.Context, level int) error
	SetSupplyAir(ctx context.Context, level int) error
	SetLightIntensity(ctx context.Context, level int) error
}

// EventBatch is one long-poll answer.
type EventBatch struct {
	Events []Event `json:"events"`
}

// Event is a single hub notification.
type Event struct {
	EventName string `json:"eventName"`

	// ChangedObjects maps service id to changed field values.
	ChangedObjects map[string]map[string]json.RawMessage `json:"changedObjects,omitempty"`
}

// PollResult holds the values found in a batch. Nil means absent.
type PollResult struct {
	Fan    *int
	Flap   *int
	Window *int
}

// Empty reports whether no value was found.
func (r PollResult) Empty() bool {
	return r.Fan == nil && r.Flap == nil && r.Window == nil
}
