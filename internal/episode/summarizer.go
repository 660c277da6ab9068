// Package episode condenses a long conversation into a single episode memory,
// at most once per conversation.
package episode

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/metrics"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/persist"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/ratelimit"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/scheduler"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/summary"
)

const (
	episodeConfidence = 1.0
	episodeImportance = 0.6
)

// MessageSource reads the messages a user recorded in a conversation.
type MessageSource interface {
	MessageCounts(ctx context.Context, userID, conversationID string) (user, total int, err error)
	Messages(ctx context.Context, userID, conversationID string) ([]model.Message, error)
}

// Creator writes the episode memory.
type Creator interface {
	Create(ctx context.Context, req persist.CreateRequest) (*persist.Result, error)
}

// Submitter defers work.
type Submitter interface {
	Submit(name, correlationID string, task scheduler.Task) (*scheduler.Handle, error)
}

// Config holds the qualifying thresholds.
type Config struct {
	MinUserMessages  int
	MinTotalMessages int
	FlagTTL          time.Duration
}

// Deps are the collaborators of a Summarizer.
type Deps struct {
	Messages  MessageSource
	Flags     ratelimit.FlagStore
	Generator summary.Generator
	Creator   Creator
	Scheduler Submitter
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

// Summarizer schedules episode summaries.
type Summarizer struct {
	cfg       Config
	messages  MessageSource
	flags     ratelimit.FlagStore
	generator summary.Generator
	creator   Creator
	scheduler Submitter
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// New creates a Summarizer.
func New(cfg Config, d Deps) *Summarizer {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinUserMessages <= 0 {
		cfg.MinUserMessages = 8
	}
	if cfg.MinTotalMessages <= 0 {
		cfg.MinTotalMessages = 15
	}
	return &Summarizer{
		cfg:       cfg,
		messages:  d.Messages,
		flags:     d.Flags,
		generator: d.Generator,
		creator:   d.Creator,
		scheduler: d.Scheduler,
		metrics:   d.Metrics,
		logger:    logger.With(zap.String("component", "episode")),
	}
}

// FlagKey is the marker key of a user's episode for a conversation.
func FlagKey(userID, conversationID string) string {
	return "episode:" + userID + ":" + conversationID
}

// Qualifies reports whether the message counts cross the threshold.
func (s *Summarizer) Qualifies(userMessages, totalMessages int) bool {
	return userMessages >= s.cfg.MinUserMessages || totalMessages >= s.cfg.MinTotalMessages
}

// OnResponseRecorded runs after a message of the conversation is stored.
// The first time the conversation qualifies it sets the episode flag and
// schedules the summary. It returns the scheduled handle, or nil when nothing
// was scheduled. Errors never propagate to the conversation; they are logged.
func (s *Summarizer) OnResponseRecorded(ctx context.Context, userID, conversationID string) *scheduler.Handle {
	if userID == "" || conversationID == "" {
		return nil
	}

	userCount, total, err := s.messages.MessageCounts(ctx, userID, conversationID)
	if err != nil {
		s.logger.Warn("episode check skipped, message count failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}
	if !s.Qualifies(userCount, total) {
		return nil
	}

	set, err := s.flags.SetIfAbsent(ctx, FlagKey(userID, conversationID), s.cfg.FlagTTL)
	if err != nil {
		s.logger.Warn("episode check skipped, flag store unreachable",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}
	if !set {
		return nil
	}

	corr := uuid.NewString()
	h, err := s.scheduler.Submit("episode.summarize", corr, func(ctx context.Context) error {
		return s.summarize(ctx, userID, conversationID, corr)
	})
	if err != nil {
		s.logger.Warn("could not schedule episode summary",
			zap.String("conversation_id", conversationID),
			zap.String("correlation_id", corr),
			zap.Error(err),
		)
		return nil
	}

	s.metrics.EpisodeScheduled()
	s.logger.Info("episode summary scheduled",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
		zap.String("correlation_id", corr),
		zap.Int("user_messages", userCount),
		zap.Int("total_messages", total),
	)
	return h
}

func (s *Summarizer) summarize(ctx context.Context, userID, conversationID, corr string) error {
	msgs, err := s.messages.Messages(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("conversation %s has no messages for user", conversationID)
	}

	text, err := s.generator.Summarize(ctx, msgs)
	if err != nil {
		s.logger.Error("episode summary generation failed",
			zap.String("conversation_id", conversationID),
			zap.String("correlation_id", corr),
			zap.Error(err),
		)
		return fmt.Errorf("summarize: %w", err)
	}

	_, err = s.creator.Create(ctx, persist.CreateRequest{
		UserID:         userID,
		Content:        text,
		Type:           model.TypeEpisode,
		Confidence:     episodeConfidence,
		Importance:     episodeImportance,
		ConversationID: conversationID,
		CorrelationID:  corr,
	})
	return err
}
