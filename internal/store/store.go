// Package store provides the memory storage interface and SQLite implementation.
// Every query that reads or mutates memory items is scoped by the owning user.
package store

import (
	"context"
	"errors"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

var (
	// ErrNotFound is returned when no item with the id exists for the user.
	ErrNotFound = errors.New("memory not found")
	// ErrNotActive is returned when a supersede or delete targets an item
	// that is already superseded or deleted.
	ErrNotActive = errors.New("memory is not active")
)

// ListParams holds parameters for listing memories.
type ListParams struct {
	UserID string
	Type   model.MemoryType
	// Status filters by status; empty means active only.
	Status model.Status
	// All includes every status and overrides Status.
	All   bool
	Limit int
}

// AuditParams filters the audit trail.
type AuditParams struct {
	UserID        string
	CorrelationID string
	MemoryID      string
	Limit         int
}

// Store defines the memory storage interface.
type Store interface {
	// InsertItem writes a new active item and its create audit event in one transaction.
	InsertItem(ctx context.Context, item *model.MemoryItem, audit *model.WriteAuditEvent) error

	// SupersedeItem marks oldID superseded by item and inserts item, writing
	// both audit events, in one transaction. Returns the old item as it was
	// before the update.
	SupersedeItem(ctx context.Context, userID, oldID string, item *model.MemoryItem, supersedeAudit, createAudit *model.WriteAuditEvent) (*model.MemoryItem, error)

	// SoftDeleteItem marks an active item owned by userID deleted and writes its audit event.
	SoftDeleteItem(ctx context.Context, userID, id string, audit *model.WriteAuditEvent) (*model.MemoryItem, error)

	// InsertAudit appends a standalone audit event.
	InsertAudit(ctx context.Context, ev *model.WriteAuditEvent) error

	// GetItem returns an item owned by userID in any status.
	GetItem(ctx context.Context, userID, id string) (*model.MemoryItem, error)

	// ActiveItems returns every active item of the user, embeddings included.
	ActiveItems(ctx context.Context, userID string) ([]model.MemoryItem, error)

	// ListItems lists items without embeddings.
	ListItems(ctx context.Context, p ListParams) ([]model.MemoryItem, error)

	// Close closes the store.
	Close() error
}
