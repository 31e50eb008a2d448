package events

import (
	"sync"

	"github.com/afroash/pump-controller/internal/models"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	events   []models.Event
	payloads [][]byte

	// PublishError, if set, is returned by Publish.
	PublishError error

	closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the event and its payload.
func (f *FakePublisher) Publish(ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(ev)
	if err != nil {
		return err
	}
	f.events = append(f.events, ev)
	f.payloads = append(f.payloads, payload)
	return nil
}

// Events returns a copy of the recorded events.
func (f *FakePublisher) Events() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Event(nil), f.events...)
}

// Payloads returns a copy of the recorded payloads.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded state.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
	f.payloads = nil
	f.PublishError = nil
	f.closed = false
}
