package models

import "time"

type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageCompanion MessageType = "companion"
)

// Message is one entry of the per-user chat log. Messages live in a Redis
// list as JSON and are append-only; they are never mutated after creation.
type Message struct {
	Type      MessageType    `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"` // voice flag, voice/image URLs
}
