package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeStatus   MessageType = "status"
	MessageTypeProgress MessageType = "progress"
	MessageTypeEvent    MessageType = "event"
	MessageTypeError    MessageType = "error"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// ProgressMessage is the payload for MessageTypeProgress.
// Remaining reaches 0 exactly once per timer run.
type ProgressMessage struct {
	RunID       string `json:"run_id"`
	Remaining   int    `json:"remaining"`
	TargetSpeed int    `json:"target_speed"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
