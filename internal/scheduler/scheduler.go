// Package scheduler runs deferred units of work in the background and tracks
// every outstanding one so the owner can drain them at shutdown.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/metrics"
)

// ErrClosed is returned by Submit once Drain has started.
var ErrClosed = errors.New("scheduler is closed")

// DefaultDrainTimeout bounds how long Drain waits.
const DefaultDrainTimeout = 5 * time.Second

// Task is a unit of deferred work. It must return when ctx is done.
type Task func(ctx context.Context) error

// Config configures a Scheduler.
type Config struct {
	DrainTimeout time.Duration
	// MaxConcurrent bounds running tasks; zero means unbounded.
	MaxConcurrent int
	// TaskTimeout bounds a single task; zero means none.
	TaskTimeout time.Duration
}

// Scheduler owns a registry of outstanding tasks.
type Scheduler struct {
	cfg     Config
	sem     *semaphore.Weighted
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  map[string]*Handle
	// idle is closed whenever tasks becomes empty and replaced when the
	// next task is submitted.
	idle chan struct{}

	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a Scheduler. It runs until Drain is called.
func New(cfg Config, m *metrics.Collector, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	s := &Scheduler{
		cfg:     cfg,
		baseCtx: ctx,
		cancel:  cancel,
		tasks:   make(map[string]*Handle),
		idle:    idle,
		metrics: m,
		logger:  logger.With(zap.String("component", "scheduler")),
	}
	if cfg.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return s
}

// Submit schedules task and returns its handle immediately.
func (s *Scheduler) Submit(name, correlationID string, task Task) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	h := &Handle{
		id:            uuid.NewString(),
		name:          name,
		correlationID: correlationID,
		submittedAt:   time.Now(),
		done:          make(chan struct{}),
	}
	if len(s.tasks) == 0 {
		s.idle = make(chan struct{})
	}
	s.tasks[h.id] = h
	s.mu.Unlock()

	s.metrics.TaskStarted()
	go s.run(h, task)
	return h, nil
}

func (s *Scheduler) run(h *Handle, task Task) {
	err := s.execute(h, task)
	if err != nil {
		s.logger.Debug("task finished with error",
			zap.String("task", h.name),
			zap.String("correlation_id", h.correlationID),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	h.err = err
	close(h.done)
	delete(s.tasks, h.id)
	if len(s.tasks) == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
	s.metrics.TaskFinished()
}

func (s *Scheduler) execute(h *Handle, task Task) (err error) {
	if s.sem != nil {
		if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
			return fmt.Errorf("acquire slot: %w", err)
		}
		defer s.sem.Release(1)
	}

	ctx := s.baseCtx
	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				zap.String("task", h.name),
				zap.String("correlation_id", h.correlationID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("task %s panicked: %v", h.name, r)
		}
	}()
	return task(ctx)
}

// Outstanding returns the handles of every task not yet finished, oldest first.
func (s *Scheduler) Outstanding() []*Handle {
	s.mu.Lock()
	out := make([]*Handle, 0, len(s.tasks))
	for _, h := range s.tasks {
		out = append(out, h)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].submittedAt.Before(out[j].submittedAt)
	})
	return out
}

// Wait blocks until no task is outstanding or ctx is done. Tasks submitted
// while waiting are waited for too.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops accepting work and waits up to the drain timeout for
// outstanding tasks. Tasks still running afterwards are abandoned: their
// context is cancelled and their effects are not rolled back. Returns the
// number of abandoned tasks.
func (s *Scheduler) Drain(ctx context.Context) int {
	s.mu.Lock()
	s.closed = true
	pending := len(s.tasks)
	s.mu.Unlock()

	s.logger.Info("draining background tasks", zap.Int("outstanding", pending))

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	if err := s.Wait(waitCtx); err == nil {
		s.cancel()
		s.logger.Info("background tasks drained")
		return 0
	}

	abandoned := s.Outstanding()
	s.cancel()

	names := make([]string, 0, len(abandoned))
	for _, h := range abandoned {
		names = append(names, h.name+":"+h.correlationID)
	}
	s.logger.Warn("drain timed out, abandoning tasks",
		zap.Int("abandoned", len(abandoned)),
		zap.Duration("timeout", s.cfg.DrainTimeout),
		zap.Strings("tasks", names),
	)
	s.metrics.TasksAbandoned(len(abandoned))
	return len(abandoned)
}

// Handle tracks one submitted task.
type Handle struct {
	id            string
	name          string
	correlationID string
	submittedAt   time.Time
	done          chan struct{}
	err           error
}

// ID returns the task id.
func (h *Handle) ID() string { return h.id }

// Name returns the task name.
func (h *Handle) Name() string { return h.name }

// CorrelationID returns the correlation id the task was submitted with.
func (h *Handle) CorrelationID() string { return h.correlationID }

// Done is closed when the task finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task error. Only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
