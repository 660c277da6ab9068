// Package persist owns every mutation of memory items: create, supersede and
// soft delete. Each operation appends to the write audit trail, including
// failed and skipped attempts.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/dedup"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/embedding"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/metrics"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
)

// ErrPersistence wraps embedding and store failures of a deferred write.
var ErrPersistence = errors.New("persistence failed")

// Store is the subset of the memory store the engine mutates through.
type Store interface {
	InsertItem(ctx context.Context, item *model.MemoryItem, audit *model.WriteAuditEvent) error
	SupersedeItem(ctx context.Context, userID, oldID string, item *model.MemoryItem, supersedeAudit, createAudit *model.WriteAuditEvent) (*model.MemoryItem, error)
	SoftDeleteItem(ctx context.Context, userID, id string, audit *model.WriteAuditEvent) (*model.MemoryItem, error)
	InsertAudit(ctx context.Context, ev *model.WriteAuditEvent) error
	OwnerOf(ctx context.Context, id string) (string, error)
}

// CreateRequest describes a new memory.
type CreateRequest struct {
	// ItemID is optional; a ULID is generated when empty.
	ItemID         string
	UserID         string
	Content        string
	Type           model.MemoryType
	Confidence     float64
	Importance     float64
	ConversationID string
	MessageID      string
	CorrelationID  string
}

// Result is the outcome of Create or Supersede.
type Result struct {
	Outcome model.Outcome
	// Item is the newly written item; nil when the write was skipped.
	Item *model.MemoryItem
	// Duplicate is the existing item that caused a skip.
	Duplicate  *model.MemoryItem
	Similarity float64
	// Superseded is the old item as it was before supersession.
	Superseded *model.MemoryItem
}

// Engine performs durable writes.
type Engine struct {
	store    Store
	embedder embedding.Embedder
	detector *dedup.Detector
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(s Store, e embedding.Embedder, d *dedup.Detector, m *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    s,
		embedder: e,
		detector: d,
		metrics:  m,
		logger:   logger.With(zap.String("component", "persist")),
	}
}

// Create embeds the content, skips it if the user already has an active
// duplicate, and otherwise inserts a new active item.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	start := time.Now()
	if err := model.ValidateWrite(req.UserID, req.Content, req.Type, req.Confidence); err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, e.fail(ctx, model.OpCreate, req, "", start, fmt.Errorf("embed: %w", err))
	}

	match, err := e.detector.FindDuplicate(ctx, req.UserID, vec)
	if err != nil {
		return nil, e.fail(ctx, model.OpCreate, req, "", start, fmt.Errorf("duplicate check: %w", err))
	}
	if match != nil {
		audit := e.audit(req, "", model.OpCreate, model.OutcomeDuplicateSkipped, start)
		if err := e.store.InsertAudit(ctx, audit); err != nil {
			return nil, e.fail(ctx, model.OpCreate, req, "", start, fmt.Errorf("audit duplicate: %w", err))
		}
		e.metrics.RecordPersistence(string(model.OpCreate), string(model.OutcomeDuplicateSkipped), time.Since(start))
		e.logger.Info("duplicate memory skipped",
			zap.String("correlation_id", req.CorrelationID),
			zap.String("user_id", req.UserID),
			zap.String("existing_id", match.Item.ID),
			zap.Float64("similarity", match.Similarity),
		)
		dup := match.Item
		return &Result{Outcome: model.OutcomeDuplicateSkipped, Duplicate: &dup, Similarity: match.Similarity}, nil
	}

	item := e.newItem(req, vec)
	audit := e.audit(req, item.ID, model.OpCreate, model.OutcomeCreated, start)
	if err := e.store.InsertItem(ctx, item, audit); err != nil {
		return nil, e.fail(ctx, model.OpCreate, req, item.ID, start, fmt.Errorf("insert: %w", err))
	}

	e.metrics.RecordPersistence(string(model.OpCreate), string(model.OutcomeCreated), time.Since(start))
	e.logger.Info("memory created",
		zap.String("correlation_id", req.CorrelationID),
		zap.String("user_id", req.UserID),
		zap.String("memory_id", item.ID),
		zap.String("type", string(item.Type)),
	)
	return &Result{Outcome: model.OutcomeCreated, Item: item}, nil
}

// Supersede replaces the active item oldID with a new item built from req.
// Both audit events share req.CorrelationID. The duplicate check does not
// apply: the caller has already decided the new content replaces the old.
func (e *Engine) Supersede(ctx context.Context, oldID string, req CreateRequest) (*Result, error) {
	start := time.Now()
	if err := model.ValidateWrite(req.UserID, req.Content, req.Type, req.Confidence); err != nil {
		return nil, err
	}
	if oldID == "" {
		return nil, &model.ValidationError{Field: "supersedes", Reason: "is required"}
	}

	vec, err := e.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, e.fail(ctx, model.OpSupersede, req, oldID, start, fmt.Errorf("embed: %w", err))
	}

	item := e.newItem(req, vec)
	supersedeAudit := e.audit(req, oldID, model.OpSupersede, model.OutcomeSuperseded, start)
	createAudit := e.audit(req, item.ID, model.OpCreate, model.OutcomeCreated, start)

	old, err := e.store.SupersedeItem(ctx, req.UserID, oldID, item, supersedeAudit, createAudit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.checkCrossUser(ctx, req.UserID, oldID, model.OpSupersede, req.CorrelationID)
		}
		return nil, e.fail(ctx, model.OpSupersede, req, oldID, start, fmt.Errorf("supersede %s: %w", oldID, err))
	}

	e.metrics.RecordPersistence(string(model.OpSupersede), string(model.OutcomeSuperseded), time.Since(start))
	e.logger.Info("memory superseded",
		zap.String("correlation_id", req.CorrelationID),
		zap.String("user_id", req.UserID),
		zap.String("old_id", oldID),
		zap.String("new_id", item.ID),
	)
	return &Result{Outcome: model.OutcomeSuperseded, Item: item, Superseded: old}, nil
}

// Delete soft-deletes each id owned by userID and returns the ids deleted.
// Ids owned by another user are skipped without mutation. Ids already
// superseded or deleted are skipped.
func (e *Engine) Delete(ctx context.Context, userID string, ids []string, correlationID string) ([]string, error) {
	if userID == "" {
		return nil, &model.ValidationError{Field: "user_id", Reason: "is required"}
	}

	var deleted []string
	var errs []error
	for _, id := range ids {
		start := time.Now()
		audit := &model.WriteAuditEvent{
			MemoryID:      id,
			UserID:        userID,
			Operation:     model.OpDelete,
			Outcome:       model.OutcomeDeleted,
			Confidence:    1.0,
			CorrelationID: correlationID,
		}

		_, err := e.store.SoftDeleteItem(ctx, userID, id, audit)
		switch {
		case err == nil:
			deleted = append(deleted, id)
			e.metrics.RecordPersistence(string(model.OpDelete), string(model.OutcomeDeleted), time.Since(start))
		case errors.Is(err, store.ErrNotFound):
			e.checkCrossUser(ctx, userID, id, model.OpDelete, correlationID)
		case errors.Is(err, store.ErrNotActive):
			e.logger.Debug("delete skipped, memory not active",
				zap.String("correlation_id", correlationID),
				zap.String("memory_id", id),
			)
		default:
			req := CreateRequest{UserID: userID, Confidence: 1.0, CorrelationID: correlationID}
			errs = append(errs, e.fail(ctx, model.OpDelete, req, id, start, fmt.Errorf("delete %s: %w", id, err)))
		}
	}

	if len(deleted) > 0 {
		e.logger.Info("memories deleted",
			zap.String("correlation_id", correlationID),
			zap.String("user_id", userID),
			zap.Strings("memory_ids", deleted),
		)
	}
	return deleted, errors.Join(errs...)
}

// checkCrossUser logs a security event when id exists but belongs to another user.
func (e *Engine) checkCrossUser(ctx context.Context, userID, id string, op model.Operation, correlationID string) {
	owner, err := e.store.OwnerOf(ctx, id)
	if err != nil || owner == userID {
		return
	}
	e.logger.Warn("cross-user memory access rejected",
		zap.String("event", "cross_user_access_attempt"),
		zap.String("operation", string(op)),
		zap.String("correlation_id", correlationID),
		zap.String("user_id", userID),
		zap.String("memory_id", id),
	)
}

func (e *Engine) newItem(req CreateRequest, vec embedding.Vector) *model.MemoryItem {
	id := req.ItemID
	if id == "" {
		id = model.NewID()
	}
	return &model.MemoryItem{
		ID:                   id,
		UserID:               req.UserID,
		Content:              req.Content,
		Type:                 req.Type,
		Confidence:           req.Confidence,
		Importance:           req.Importance,
		Status:               model.StatusActive,
		SourceConversationID: req.ConversationID,
		SourceMessageID:      req.MessageID,
		Embedding:            vec,
	}
}

func (e *Engine) audit(req CreateRequest, memoryID string, op model.Operation, outcome model.Outcome, start time.Time) *model.WriteAuditEvent {
	var after *string
	if req.Content != "" {
		content := req.Content
		after = &content
	}
	return &model.WriteAuditEvent{
		MemoryID:      memoryID,
		UserID:        req.UserID,
		Operation:     op,
		Outcome:       outcome,
		Confidence:    req.Confidence,
		AfterContent:  after,
		CorrelationID: req.CorrelationID,
		Duration:      time.Since(start),
	}
}

// fail logs err, records a best-effort failed audit event and returns err
// wrapped in ErrPersistence.
func (e *Engine) fail(ctx context.Context, op model.Operation, req CreateRequest, memoryID string, start time.Time, err error) error {
	e.logger.Error("memory write failed",
		zap.String("correlation_id", req.CorrelationID),
		zap.String("user_id", req.UserID),
		zap.String("operation", string(op)),
		zap.String("memory_id", memoryID),
		zap.Error(err),
	)

	audit := e.audit(req, memoryID, op, model.OutcomeFailed, start)
	audit.Error = err.Error()
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if aerr := e.store.InsertAudit(auditCtx, audit); aerr != nil {
		e.logger.Warn("failed to record failure audit event",
			zap.String("correlation_id", req.CorrelationID),
			zap.Error(aerr),
		)
	}

	e.metrics.RecordPersistence(string(op), string(model.OutcomeFailed), time.Since(start))
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
