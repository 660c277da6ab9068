// Package gate decides, synchronously and without waiting on storage, whether
// a candidate memory is written, held for confirmation or dropped, and hands
// accepted writes to the background scheduler.
package gate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/metrics"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/persist"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/scheduler"
)

// Action is the immediate outcome of a gate decision.
type Action string

const (
	ActionValidationError Action = "validation_error"
	ActionRateLimited     Action = "rate_limited"
	ActionConfirmNeeded   Action = "confirm_needed"
	ActionDiscarded       Action = "discarded"
	ActionQueued          Action = "queued"
	// ActionCandidates returns delete candidates without mutation.
	ActionCandidates Action = "candidates"
	// ActionNoMatch means a confirmed delete resolved to nothing.
	ActionNoMatch Action = "no_match"
	// ActionFailed means the work could not be scheduled or searched.
	ActionFailed Action = "failed"
)

// Thresholds are the confidence boundaries of DecideSave.
type Thresholds struct {
	// Auto and above: the write is scheduled.
	Auto float64
	// Confirm and above, below Auto: confirmation is requested.
	Confirm float64
}

// DefaultThresholds returns the standard boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Auto: 0.7, Confirm: 0.5}
}

// Validate checks the thresholds are ordered within [0,1].
func (t Thresholds) Validate() error {
	if t.Auto < 0 || t.Auto > 1 || t.Confirm < 0 || t.Confirm > 1 {
		return fmt.Errorf("thresholds must be within [0,1]: auto=%v confirm=%v", t.Auto, t.Confirm)
	}
	if t.Confirm > t.Auto {
		return fmt.Errorf("confirm threshold %v exceeds auto threshold %v", t.Confirm, t.Auto)
	}
	return nil
}

// Limiter admits or rejects a write for the user and conversation.
type Limiter interface {
	AllowWrite(ctx context.Context, userID, conversationID string) (bool, string)
}

// Writer performs the durable operations.
type Writer interface {
	Create(ctx context.Context, req persist.CreateRequest) (*persist.Result, error)
	Supersede(ctx context.Context, oldID string, req persist.CreateRequest) (*persist.Result, error)
	Delete(ctx context.Context, userID string, ids []string, correlationID string) ([]string, error)
}

// Submitter defers work.
type Submitter interface {
	Submit(name, correlationID string, task scheduler.Task) (*scheduler.Handle, error)
}

// Searcher resolves a delete query to the user's items.
type Searcher interface {
	SearchSimilarOrKeyword(ctx context.Context, userID, query string) ([]model.MemoryItem, error)
}

// Deps are the collaborators of a Gate.
type Deps struct {
	Limiter   Limiter
	Writer    Writer
	Scheduler Submitter
	Searcher  Searcher
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

// Gate is the only entry point that mutates memories.
type Gate struct {
	thresholds Thresholds
	limiter    Limiter
	writer     Writer
	scheduler  Submitter
	searcher   Searcher
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New creates a Gate.
func New(t Thresholds, d Deps) (*Gate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if d.Writer == nil || d.Scheduler == nil {
		return nil, errors.New("gate requires a writer and a scheduler")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		thresholds: t,
		limiter:    d.Limiter,
		writer:     d.Writer,
		scheduler:  d.Scheduler,
		searcher:   d.Searcher,
		metrics:    d.Metrics,
		logger:     logger.With(zap.String("component", "gate")),
	}, nil
}

// SaveRequest is a candidate memory proposed by the conversation.
type SaveRequest struct {
	UserID         string
	Content        string
	Type           model.MemoryType
	Confidence     float64
	Importance     float64
	ConversationID string
	MessageID      string
	// Supersedes is the id of an active item the new content replaces.
	Supersedes string
}

// SaveDecision is returned to the caller before any durable work runs.
type SaveDecision struct {
	Action Action
	// ItemID is the id the item will carry once written. Set when queued.
	ItemID string
	// Content is echoed back when confirmation is needed.
	Content       string
	Reason        string
	CorrelationID string
	Handle        *scheduler.Handle
}

// DecideSave classifies req by confidence and, when accepted and within
// rate limits, schedules the write and returns at once.
func (g *Gate) DecideSave(ctx context.Context, req SaveRequest) SaveDecision {
	d := g.decideSave(ctx, req)
	g.metrics.RecordGateDecision("save", string(d.Action))
	g.logger.Debug("save decision",
		zap.String("user_id", req.UserID),
		zap.String("conversation_id", req.ConversationID),
		zap.Float64("confidence", req.Confidence),
		zap.String("action", string(d.Action)),
		zap.String("correlation_id", d.CorrelationID),
	)
	return d
}

func (g *Gate) decideSave(ctx context.Context, req SaveRequest) SaveDecision {
	if err := model.ValidateWrite(req.UserID, req.Content, req.Type, req.Confidence); err != nil {
		return SaveDecision{Action: ActionValidationError, Reason: err.Error()}
	}

	switch {
	case req.Confidence < g.thresholds.Confirm:
		return SaveDecision{Action: ActionDiscarded}
	case req.Confidence < g.thresholds.Auto:
		return SaveDecision{Action: ActionConfirmNeeded, Content: req.Content}
	}

	if g.limiter != nil {
		if ok, scope := g.limiter.AllowWrite(ctx, req.UserID, req.ConversationID); !ok {
			return SaveDecision{Action: ActionRateLimited, Reason: scope + " limit reached"}
		}
	}

	cr := persist.CreateRequest{
		ItemID:         model.NewID(),
		UserID:         req.UserID,
		Content:        req.Content,
		Type:           req.Type,
		Confidence:     req.Confidence,
		Importance:     clampUnit(req.Importance),
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		CorrelationID:  uuid.NewString(),
	}

	name := "memory.create"
	task := func(ctx context.Context) error {
		_, err := g.writer.Create(ctx, cr)
		return err
	}
	if req.Supersedes != "" {
		name = "memory.supersede"
		oldID := req.Supersedes
		task = func(ctx context.Context) error {
			_, err := g.writer.Supersede(ctx, oldID, cr)
			return err
		}
	}

	h, err := g.scheduler.Submit(name, cr.CorrelationID, task)
	if err != nil {
		g.logger.Warn("could not schedule memory write",
			zap.String("user_id", req.UserID),
			zap.String("correlation_id", cr.CorrelationID),
			zap.Error(err),
		)
		return SaveDecision{Action: ActionFailed, Reason: err.Error(), CorrelationID: cr.CorrelationID}
	}
	return SaveDecision{
		Action:        ActionQueued,
		ItemID:        cr.ItemID,
		CorrelationID: cr.CorrelationID,
		Handle:        h,
	}
}

// DeleteDecision is the outcome of DecideDelete.
type DeleteDecision struct {
	Action Action
	// Candidates are the matches of an unconfirmed delete.
	Candidates []model.MemoryItem
	// DeletedIDs are the ids scheduled for deletion.
	DeletedIDs    []string
	Reason        string
	CorrelationID string
	Handle        *scheduler.Handle
}

// DecideDelete searches userID's memories for query. Without confirm it
// only returns the candidates. With confirm it re-resolves the query and
// schedules deletion of the matches.
func (g *Gate) DecideDelete(ctx context.Context, userID, query string, confirm bool) DeleteDecision {
	d := g.decideDelete(ctx, userID, query, confirm)
	g.metrics.RecordGateDecision("delete", string(d.Action))
	g.logger.Debug("delete decision",
		zap.String("user_id", userID),
		zap.Bool("confirm", confirm),
		zap.String("action", string(d.Action)),
		zap.Int("candidates", len(d.Candidates)),
		zap.Int("deleting", len(d.DeletedIDs)),
	)
	return d
}

func (g *Gate) decideDelete(ctx context.Context, userID, query string, confirm bool) DeleteDecision {
	if userID == "" {
		return DeleteDecision{Action: ActionValidationError, Reason: "user_id is required"}
	}
	if query == "" {
		return DeleteDecision{Action: ActionValidationError, Reason: "query is empty"}
	}
	if g.searcher == nil {
		return DeleteDecision{Action: ActionFailed, Reason: "search is not configured"}
	}

	found, err := g.searcher.SearchSimilarOrKeyword(ctx, userID, query)
	if err != nil {
		g.logger.Warn("delete search failed", zap.String("user_id", userID), zap.Error(err))
		return DeleteDecision{Action: ActionFailed, Reason: err.Error()}
	}

	var candidates []model.MemoryItem
	for _, it := range found {
		if it.UserID == userID && it.IsActive() {
			candidates = append(candidates, it)
		}
	}

	if !confirm {
		return DeleteDecision{Action: ActionCandidates, Candidates: candidates}
	}
	if len(candidates) == 0 {
		return DeleteDecision{Action: ActionNoMatch}
	}

	ids := make([]string, len(candidates))
	for i, it := range candidates {
		ids[i] = it.ID
	}
	corr := uuid.NewString()
	h, err := g.scheduler.Submit("memory.delete", corr, func(ctx context.Context) error {
		_, err := g.writer.Delete(ctx, userID, ids, corr)
		return err
	})
	if err != nil {
		g.logger.Warn("could not schedule memory delete",
			zap.String("user_id", userID),
			zap.String("correlation_id", corr),
			zap.Error(err),
		)
		return DeleteDecision{Action: ActionFailed, Reason: err.Error(), CorrelationID: corr}
	}
	return DeleteDecision{Action: ActionQueued, DeletedIDs: ids, CorrelationID: corr, Handle: h}
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
