package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/metrics"
)

func TestSubmit_RunsTask(t *testing.T) {
	s := New(Config{}, nil, nil)

	var ran atomic.Bool
	h, err := s.Submit("test", "corr-1", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID())
	assert.Equal(t, "test", h.Name())
	assert.Equal(t, "corr-1", h.CorrelationID())

	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, ran.Load())
	assert.Empty(t, s.Outstanding())
	assert.Equal(t, 0, s.Drain(context.Background()))
}

func TestSubmit_ReturnsBeforeTaskCompletes(t *testing.T) {
	s := New(Config{}, nil, nil)
	release := make(chan struct{})

	h, err := s.Submit("slow", "", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	select {
	case <-h.Done():
		t.Fatal("task finished before release")
	default:
	}
	assert.NoError(t, h.Err())
	assert.Len(t, s.Outstanding(), 1)

	close(release)
	require.NoError(t, h.Wait(context.Background()))
}

func TestSubmit_TaskError(t *testing.T) {
	s := New(Config{}, nil, nil)
	boom := errors.New("boom")

	h, _ := s.Submit("fail", "", func(ctx context.Context) error { return boom })
	err := h.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, h.Err(), boom)
}

func TestSubmit_PanicRecovered(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := New(Config{}, nil, zap.New(core))

	h, _ := s.Submit("panicky", "corr-p", func(ctx context.Context) error { panic("kaboom") })
	err := h.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 1, logs.FilterMessage("task panicked").Len())
}

func TestSubmit_AfterDrain(t *testing.T) {
	s := New(Config{}, nil, nil)
	s.Drain(context.Background())

	_, err := s.Submit("late", "", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMaxConcurrent(t *testing.T) {
	s := New(Config{MaxConcurrent: 2}, nil, nil)

	var running, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		_, err := s.Submit("bounded", "", func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		})
		require.NoError(t, err)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, s.Wait(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestTaskTimeout(t *testing.T) {
	s := New(Config{TaskTimeout: 20 * time.Millisecond}, nil, nil)

	h, _ := s.Submit("stuck", "", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, h.Wait(context.Background()), context.DeadlineExceeded)
}

func TestDrain_WaitsForCompletion(t *testing.T) {
	s := New(Config{DrainTimeout: time.Second}, nil, nil)

	var finished atomic.Int32
	for i := 0; i < 5; i++ {
		s.Submit("quick", "", func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
			return nil
		})
	}

	assert.Equal(t, 0, s.Drain(context.Background()))
	assert.Equal(t, int32(5), finished.Load())
}

func TestDrain_AbandonsAfterTimeout(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reg := prometheus.NewRegistry()
	s := New(Config{DrainTimeout: 30 * time.Millisecond}, metrics.NewCollector("test", reg), zap.New(core))

	var cancelled atomic.Int32
	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, _ := s.Submit("stuck", "corr", func(ctx context.Context) error {
			<-ctx.Done()
			cancelled.Add(1)
			return ctx.Err()
		})
		handles = append(handles, h)
	}
	quick, _ := s.Submit("quick", "", func(ctx context.Context) error { return nil })
	require.NoError(t, quick.Wait(context.Background()))

	abandoned := s.Drain(context.Background())
	assert.Equal(t, 3, abandoned)

	entries := logs.FilterMessage("drain timed out, abandoning tasks").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["abandoned"])

	for _, h := range handles {
		assert.ErrorIs(t, h.Wait(context.Background()), context.Canceled)
	}
	assert.Equal(t, int32(3), cancelled.Load())
}

func TestHandleWait_ContextDone(t *testing.T) {
	s := New(Config{}, nil, nil)
	release := make(chan struct{})
	defer close(release)

	h, _ := s.Submit("blocked", "", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
}

func TestWait_Idle(t *testing.T) {
	s := New(Config{}, nil, nil)
	require.NoError(t, s.Wait(context.Background()))
}

func TestWait_ContextDoneThenReuse(t *testing.T) {
	s := New(Config{}, nil, nil)
	release := make(chan struct{})
	_, err := s.Submit("blocked", "c1", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Wait(context.Background()))

	_, err = s.Submit("next", "c2", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, s.Wait(context.Background()))
	assert.Empty(t, s.Outstanding())
}

func TestWait_ConcurrentSubmit(t *testing.T) {
	s := New(Config{}, nil, nil)
	var ran atomic.Int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, err := s.Submit("task", "c", func(ctx context.Context) error {
				ran.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}
	}()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Wait(context.Background()))
	}
	<-done
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, int32(50), ran.Load())
}
