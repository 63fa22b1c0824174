// Package events fans job outcome events out to every subscribed client,
// across processes when a distributed transport is configured. Delivery is
// best-effort: a subscriber that is gone or too slow misses the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type Bus interface {
	Publish(ctx context.Context, e models.Event) error
	// Subscribe registers a receiver until ctx is done or cancel is called.
	// The channel is closed on unsubscribe.
	Subscribe(ctx context.Context) (<-chan models.Event, func())
}

// Relay is a distributed Bus that needs a background loop feeding remote
// events into the local hub.
type Relay interface {
	Bus
	Run(ctx context.Context) error
}

func encodeEvent(e models.Event) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return raw, nil
}

func decodeEvent(raw []byte) (models.Event, error) {
	var e models.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return models.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.JobID == "" || e.Name == "" {
		return models.Event{}, fmt.Errorf("decode event: missing job id or name")
	}
	return e, nil
}
