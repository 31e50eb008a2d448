// internal/models/message_test.go
package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	progress := ProgressMessage{RunID: "run-1", Remaining: 3, TargetSpeed: 50}

	msg, err := NewMessage(MessageTypeProgress, progress)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != MessageTypeProgress {
		t.Errorf("Type = %v, want %v", msg.Type, MessageTypeProgress)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if len(msg.Payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestNewMessage_UnsupportedPayload(t *testing.T) {
	if _, err := NewMessage(MessageTypeError, make(chan int)); err == nil {
		t.Error("NewMessage should fail for a payload that cannot be encoded")
	}
}

func TestMessage_JSONRoundtrip(t *testing.T) {
	event := NewEvent(EventTimerStarted, 75)
	event.Seconds = 30
	event.RunID = "run-42"

	msg, err := NewMessage(MessageTypeEvent, event)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != MessageTypeEvent {
		t.Errorf("Type = %v, want %v", decoded.Type, MessageTypeEvent)
	}

	var decodedEvent Event
	if err := decoded.UnmarshalPayload(&decodedEvent); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}
	if decodedEvent.ID != event.ID || decodedEvent.Seconds != 30 || decodedEvent.RunID != "run-42" {
		t.Errorf("decoded event = %+v, want %+v", decodedEvent, event)
	}
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventPumpStarted, 40)
	b := NewEvent(EventPumpStarted, 40)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("event IDs should be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if time.Since(a.Timestamp) > time.Minute {
		t.Error("Timestamp should be close to now")
	}
}

func TestDeviceInfo_Uptime(t *testing.T) {
	info := NewDeviceInfo("pump-01", "simulated", "1.0.0")
	info.StartTime = time.Now().Add(-2 * time.Second)

	if info.Uptime() < 2*time.Second {
		t.Errorf("Uptime() = %v, want >= 2s", info.Uptime())
	}
	if info.Backend != "simulated" {
		t.Errorf("Backend = %q", info.Backend)
	}
}
