// Package events publishes pump controller events to an MQTT broker.
package events

import (
	"encoding/json"
	"time"

	"github.com/afroash/pump-controller/internal/models"
)

// Publisher publishes controller events.
type Publisher interface {
	// Publish sends one event. Failures are returned, never fatal.
	Publish(ev models.Event) error

	// Close disconnects from the broker.
	Close() error
}

// Payload is the JSON body of an event message.
type Payload struct {
	Event PayloadEvent `json:"pump"`
}

// PayloadEvent contains the event details.
type PayloadEvent struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Speed     int    `json:"speed"`
	Seconds   int    `json:"seconds,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(ev models.Event) ([]byte, error) {
	return json.Marshal(Payload{
		Event: PayloadEvent{
			ID:        ev.ID,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(ev.Type),
			Speed:     ev.Speed,
			Seconds:   ev.Seconds,
			RunID:     ev.RunID,
			Source:    ev.Source,
		},
	})
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(models.Event) error { return nil }
func (NopPublisher) Close() error { return nil }
