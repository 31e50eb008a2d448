package server

import (
	"sync"
	"time"

	"github.com/afroash/pump-controller/internal/models"
)

// EventStore is an in-memory ring buffer of recent controller events
type EventStore struct {
	capacity    int
	events      []models.Event
	mutex       sync.RWMutex
	totalEvents int64
}

// EventStoreStats contains statistics about the event store
type EventStoreStats struct {
	TotalEvents   int64     `json:"total_events"`
	CurrentEvents int       `json:"current_events"` // In memory now
	OldestEvent   time.Time `json:"oldest_event,omitempty"`
	NewestEvent   time.Time `json:"newest_event,omitempty"`
}

// NewEventStore creates a new in-memory event store
func NewEventStore(capacity int) *EventStore {
	if capacity <= 0 {
		capacity = 200
	}
	return &EventStore{
		capacity: capacity,
		events:   make([]models.Event, 0, capacity),
	}
}

// Add appends an event, dropping the oldest when full
func (es *EventStore) Add(ev models.Event) {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	if len(es.events) >= es.capacity {
		es.events = es.events[1:]
	}
	es.events = append(es.events, ev)
	es.totalEvents++
}

// Latest returns up to n events, newest first
func (es *EventStore) Latest(n int) []models.Event {
	es.mutex.RLock()
	defer es.mutex.RUnlock()

	start := len(es.events) - n
	if start < 0 {
		start = 0
	}

	result := make([]models.Event, 0, len(es.events)-start)
	for i := len(es.events) - 1; i >= start; i-- {
		result = append(result, es.events[i])
	}
	return result
}

// Stats returns statistics about the store
func (es *EventStore) Stats() EventStoreStats {
	es.mutex.RLock()
	defer es.mutex.RUnlock()

	stats := EventStoreStats{
		TotalEvents:   es.totalEvents,
		CurrentEvents: len(es.events),
	}
	if len(es.events) > 0 {
		stats.OldestEvent = es.events[0].Timestamp
		stats.NewestEvent = es.events[len(es.events)-1].Timestamp
	}
	return stats
}

// Clear removes all events from the store
func (es *EventStore) Clear() {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	es.events = make([]models.Event, 0, es.capacity)
	es.totalEvents = 0
}
