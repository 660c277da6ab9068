// Package model defines the core memory data types.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryType tags what kind of information a memory holds.
type MemoryType string

const (
	TypeFact       MemoryType = "fact"
	TypePreference MemoryType = "preference"
	TypeDecision   MemoryType = "decision"
	TypeNote       MemoryType = "note"
	TypeEpisode    MemoryType = "episode"
)

// ValidTypes are the allowed memory types.
var ValidTypes = map[MemoryType]bool{
	TypeFact:       true,
	TypePreference: true,
	TypeDecision:   true,
	TypeNote:       true,
	TypeEpisode:    true,
}

// Status is the lifecycle state of a memory. Transitions are one-way:
// active -> superseded or active -> deleted.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusDeleted    Status = "deleted"
)

// MemoryItem is a durable unit of remembered information owned by one user.
type MemoryItem struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Content              string     `json:"content"`
	Type                 MemoryType `json:"type"`
	Confidence           float64    `json:"confidence"`
	Importance           float64    `json:"importance"`
	Status               Status     `json:"status"`
	SupersededBy         string     `json:"superseded_by,omitempty"`
	SourceConversationID string     `json:"source_conversation_id,omitempty"`
	SourceMessageID      string     `json:"source_message_id,omitempty"`
	Embedding            []float32  `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
}

// IsActive reports whether the item is eligible for retrieval and duplicate matching.
func (m *MemoryItem) IsActive() bool {
	return m.Status == StatusActive
}

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one recorded turn of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewID returns a new lexically sortable, time-ordered identifier.
func NewID() string {
	return ulid.Make().String()
}

// ValidationError reports malformed input to a write operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateWrite checks the fields every memory write must carry.
func ValidateWrite(userID, content string, typ MemoryType, confidence float64) error {
	if strings.TrimSpace(userID) == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Reason: "is empty"}
	}
	if !ValidTypes[typ] {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("%q is not one of fact, preference, decision, note, episode", typ)}
	}
	if confidence < 0 || confidence > 1 || confidence != confidence {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v is outside [0,1]", confidence)}
	}
	return nil
}
