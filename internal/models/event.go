package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a controller action worth reporting.
type EventType string

const (
	EventPumpStarted    EventType = "pump_started"
	EventPumpStopped    EventType = "pump_stopped"
	EventTimerStarted   EventType = "timer_started"
	EventTimerFinished  EventType = "timer_finished"
	EventTimerCancelled EventType = "timer_cancelled"
	EventScheduleFired  EventType = "schedule_fired"
)

// Event records one pump or timer transition.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Speed     int       `json:"speed"`
	Seconds   int       `json:"seconds,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an Event with a fresh ID and the current time.
func NewEvent(eventType EventType, speed int) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Speed:     speed,
		Timestamp: time.Now(),
	}
}
