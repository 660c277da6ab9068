// Package pipeline assembles the memory write pipeline from configuration and
// owns its lifetime: the task registry is created here and drained by Shutdown.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/config"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/dedup"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/embedding"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/episode"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/gate"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/metrics"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/persist"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/ratelimit"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/scheduler"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/search"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/summary"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "memory_pipeline"

// Service is one running instance of the pipeline.
type Service struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	redis     *redis.Client
	ownsRedis bool
	scheduler *scheduler.Scheduler
	engine    *persist.Engine
	gate      *gate.Gate
	episodes  *episode.Summarizer
	searcher  *search.Searcher
	metrics   *metrics.Collector
	logger    *zap.Logger
}

type options struct {
	logger    *zap.Logger
	registry  prometheus.Registerer
	embedder  embedding.Embedder
	generator summary.Generator
	redis     *redis.Client
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers metrics on r instead of a private registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registry = r }
}

// WithEmbedder overrides the configured embedding provider.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithGenerator overrides the configured summary provider.
func WithGenerator(g summary.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithRedisClient uses an existing client for counters and flags. The
// caller keeps ownership of the client.
func WithRedisClient(c *redis.Client) Option {
	return func(o *options) { o.redis = c }
}

// New builds a Service from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := o.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	embedder := o.embedder
	if embedder == nil {
		e, err := embedding.New(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		embedder = e
	}
	generator := o.generator
	if generator == nil {
		g, err := summary.New(cfg.Summary)
		if err != nil {
			return nil, err
		}
		generator = g
	}

	st, err := store.NewSQLiteStore(cfg.DB.Path)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		store:   st,
		metrics: metrics.NewCollector(MetricsNamespace, reg),
		logger:  logger.With(zap.String("component", "pipeline")),
	}

	var counters interface {
		ratelimit.CounterStore
		ratelimit.FlagStore
	}
	switch {
	case o.redis != nil:
		s.redis = o.redis
		counters = ratelimit.NewRedisStore(o.redis, cfg.Redis.KeyPrefix)
	case cfg.Redis.Addr != "":
		client, err := ratelimit.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			st.Close()
			return nil, err
		}
		s.redis, s.ownsRedis = client, true
		counters = ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix)
	case cfg.RateLimit.Store == "memory":
		counters = ratelimit.NewMemoryStore()
	default:
		counters = st
	}

	s.scheduler = scheduler.New(scheduler.Config{
		DrainTimeout:  cfg.Scheduler.DrainTimeout,
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		TaskTimeout:   cfg.Scheduler.TaskTimeout,
	}, s.metrics, logger)

	detector := dedup.NewDetector(st, cfg.Dedup.SimilarityThreshold)
	s.engine = persist.NewEngine(st, embedder, detector, s.metrics, logger)
	s.searcher = search.New(st, embedder, logger)

	limiter := ratelimit.New(counters, ratelimit.Config{
		PerConversation: cfg.RateLimit.PerConversation,
		PerUserHour:     cfg.RateLimit.PerUserHour,
		Window:          cfg.RateLimit.Window,
		Metrics:         s.metrics,
	}, logger)

	s.gate, err = gate.New(gate.Thresholds{
		Auto:    cfg.Gate.AutoThreshold,
		Confirm: cfg.Gate.ConfirmThreshold,
	}, gate.Deps{
		Limiter:   limiter,
		Writer:    s.engine,
		Scheduler: s.scheduler,
		Searcher:  s.searcher,
		Metrics:   s.metrics,
		Logger:    logger,
	})
	if err != nil {
		s.closeResources()
		return nil, err
	}

	s.episodes = episode.New(episode.Config{
		MinUserMessages:  cfg.Episode.MinUserMessages,
		MinTotalMessages: cfg.Episode.MinTotalMessages,
		FlagTTL:          cfg.Episode.FlagTTL,
	}, episode.Deps{
		Messages:  st,
		Flags:     counters,
		Generator: generator,
		Creator:   s.engine,
		Scheduler: s.scheduler,
		Metrics:   s.metrics,
		Logger:    logger,
	})

	s.logger.Info("memory pipeline started",
		zap.String("db", cfg.DB.Path),
		zap.Bool("redis", s.redis != nil),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("summary", cfg.Summary.Provider),
	)
	return s, nil
}

// DecideSave is the write entry point. It never blocks on storage.
func (s *Service) DecideSave(ctx context.Context, req gate.SaveRequest) gate.SaveDecision {
	return s.gate.DecideSave(ctx, req)
}

// DecideDelete is the delete entry point.
func (s *Service) DecideDelete(ctx context.Context, userID, query string, confirm bool) gate.DeleteDecision {
	return s.gate.DecideDelete(ctx, userID, query, confirm)
}

// RecordMessage stores a conversation message and then runs the episode
// check. The returned handle is non-nil when an episode was scheduled.
func (s *Service) RecordMessage(ctx context.Context, msg *model.Message) (*scheduler.Handle, error) {
	if msg.UserID == "" || msg.ConversationID == "" {
		return nil, &model.ValidationError{Field: "message", Reason: "user_id and conversation_id are required"}
	}
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		return nil, &model.ValidationError{Field: "role", Reason: fmt.Sprintf("%q is not user or assistant", msg.Role)}
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return s.episodes.OnResponseRecorded(ctx, msg.UserID, msg.ConversationID), nil
}

// Store exposes the read side of the store for listing and reporting.
func (s *Service) Store() *store.SQLiteStore { return s.store }

// Outstanding returns the handles of unfinished background work.
func (s *Service) Outstanding() []*scheduler.Handle { return s.scheduler.Outstanding() }

// Wait blocks until no background work is outstanding or ctx is done.
func (s *Service) Wait(ctx context.Context) error { return s.scheduler.Wait(ctx) }

// Shutdown drains background work, then closes the store and any Redis
// client the service opened. Returns the number of abandoned tasks.
func (s *Service) Shutdown(ctx context.Context) (int, error) {
	abandoned := s.scheduler.Drain(ctx)
	return abandoned, s.closeResources()
}

func (s *Service) closeResources() error {
	var errs []error
	if s.ownsRedis && s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
