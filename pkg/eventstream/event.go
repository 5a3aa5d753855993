// Package eventstream defines transport-neutral memory lifecycle events and
// the publisher interface backends implement.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeReplyDispatched is emitted after a reply is sent to the user.
	EventTypeReplyDispatched = "recall.reply.dispatched"

	// EventTypeMemoryPromoted is emitted when a candidate fact is promoted to
	// long-term memory.
	EventTypeMemoryPromoted = "recall.memory.promoted"
)

// MemoryEvent is a transport-neutral event for memory lifecycle changes.
type MemoryEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// UserID is the owner of the memory or the recipient of the reply.
	UserID string `json:"user_id"`

	// MemoryText is the promoted fact, when the event carries one.
	MemoryText string `json:"memory_text,omitempty"`

	// Degraded names context sources that were unavailable for this reply.
	Degraded []string `json:"degraded,omitempty"`

	// Fallback marks replies that substituted the fixed fallback.
	Fallback bool `json:"fallback,omitempty"`
}

// NewReplyDispatched builds a reply.dispatched event.
func NewReplyDispatched(userID string, degraded []string, fallback bool) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeReplyDispatched,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		UserID:        userID,
		Degraded:      degraded,
		Fallback:      fallback,
	}
}

// NewMemoryPromoted builds a memory.promoted event.
func NewMemoryPromoted(userID, memoryText string) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoryPromoted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		UserID:        userID,
		MemoryText:    memoryText,
	}
}
