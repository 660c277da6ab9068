package model

import "time"

// Operation is the persistence operation an audit event records.
type Operation string

const (
	OpCreate    Operation = "create"
	OpSupersede Operation = "supersede"
	OpDelete    Operation = "delete"
)

// Outcome is the result of a deferred persistence operation.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeDuplicateSkipped Outcome = "duplicate_skipped"
	OutcomeSuperseded       Outcome = "superseded"
	OutcomeDeleted          Outcome = "deleted"
	OutcomeFailed           Outcome = "failed"
)

// WriteAuditEvent is an append-only record of one persistence operation.
// MemoryID is empty when no item was written (duplicate or failure).
type WriteAuditEvent struct {
	ID            string        `json:"id"`
	MemoryID      string        `json:"memory_id,omitempty"`
	UserID        string        `json:"user_id"`
	Operation     Operation     `json:"operation"`
	Outcome       Outcome       `json:"outcome"`
	Confidence    float64       `json:"confidence"`
	BeforeContent *string       `json:"before_content,omitempty"`
	AfterContent  *string       `json:"after_content,omitempty"`
	CorrelationID string        `json:"correlation_id"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
