// Package ratelimit bounds how many memory writes are accepted per
// conversation and per user-hour, using an atomic counter store.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/metrics"
)

// Result is the outcome of one counter check.
type Result struct {
	Allowed   bool
	Remaining int
	// FailedOpen is set when the counter store was unreachable.
	FailedOpen bool
}

// Limiter checks and increments counters. It fails open: if the counter
// store errors, the request is allowed and a warning is logged.
type Limiter struct {
	counters        CounterStore
	perConversation int
	perUserHour     int
	window          time.Duration
	metrics         *metrics.Collector
	logger          *zap.Logger
}

// Config holds limiter bounds.
type Config struct {
	PerConversation int
	PerUserHour     int
	Window          time.Duration
	// Metrics is optional.
	Metrics *metrics.Collector
}

// New creates a Limiter.
func New(counters CounterStore, cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &Limiter{
		counters:        counters,
		perConversation: cfg.PerConversation,
		perUserHour:     cfg.PerUserHour,
		window:          cfg.Window,
		metrics:         cfg.Metrics,
		logger:          logger.With(zap.String("component", "ratelimit")),
	}
}

// CheckAndIncrement increments scopeKey and reports whether the new count is
// within limit. A ttl of zero keeps the counter without expiry.
func (l *Limiter) CheckAndIncrement(ctx context.Context, scopeKey string, limit int, ttl time.Duration) Result {
	n, err := l.counters.IncrementAndGet(ctx, scopeKey, ttl)
	if err != nil {
		l.logger.Warn("counter store unreachable, allowing write",
			zap.String("scope", scopeKey),
			zap.Error(err),
		)
		l.metrics.RateLimitFailedOpen()
		return Result{Allowed: true, Remaining: limit, FailedOpen: true}
	}

	remaining := limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: n <= int64(limit), Remaining: remaining}
}

// AllowWrite applies both scopes: the conversation counter first, then the
// user-hour counter. A conversation rejection leaves the user counter alone.
// An empty conversationID skips the conversation scope.
func (l *Limiter) AllowWrite(ctx context.Context, userID, conversationID string) (bool, string) {
	if conversationID != "" {
		res := l.CheckAndIncrement(ctx, ConversationKey(userID, conversationID), l.perConversation, 0)
		if !res.Allowed {
			l.logger.Debug("conversation write limit reached",
				zap.String("conversation_id", conversationID),
				zap.Int("limit", l.perConversation),
			)
			return false, "conversation"
		}
	}

	res := l.CheckAndIncrement(ctx, UserHourKey(userID), l.perUserHour, l.window)
	if !res.Allowed {
		l.logger.Debug("user hourly write limit reached",
			zap.String("user_id", userID),
			zap.Int("limit", l.perUserHour),
		)
		return false, "user_hour"
	}
	return true, ""
}

// ConversationKey is the counter key of a user's conversation.
func ConversationKey(userID, conversationID string) string {
	return "ratelimit:conv:" + userID + ":" + conversationID
}

// UserHourKey is the counter key of a user's rolling window.
func UserHourKey(userID string) string {
	return "ratelimit:user:" + userID
}
