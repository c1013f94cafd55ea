package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeTick         MessageType = "tick"
	MessageTypeFetchFailure MessageType = "fetch_failure"
	MessageTypeError        MessageType = "error"
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

// TickMessage is the payload for MessageTypeTick
type TickMessage struct {
	SubjectID  string  `json:"subject_id"`
	Reading    Reading `json:"reading"`
	Alerts     []Alert `json:"alerts"`
	WindowSize int     `json:"window_size"`
}

// FetchFailureMessage is the payload for MessageTypeFetchFailure
type FetchFailureMessage struct {
	SubjectID           string `json:"subject_id"`
	Error               string `json:"error"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Stale               bool   `json:"stale"`
	WindowSize          int    `json:"window_size"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	err := json.Unmarshal(m.Payload, v)
	if err != nil {
		return err
	}
	return nil
}
