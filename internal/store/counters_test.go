package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestCounters_IncrementAndExpire(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementAndGet(ctx, "user:u1", time.Hour)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != want {
			t.Errorf("expected %d, got %d", want, n)
		}
	}

	now = now.Add(59 * time.Minute)
	if n, _ := s.IncrementAndGet(ctx, "user:u1", time.Hour); n != 4 {
		t.Errorf("window should not slide on increment, got %d", n)
	}

	now = now.Add(time.Minute)
	if n, _ := s.IncrementAndGet(ctx, "user:u1", time.Hour); n != 1 {
		t.Errorf("expected expired counter to restart at 1, got %d", n)
	}
}

func TestCounters_NoTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.IncrementAndGet(ctx, "conv", 0)
	now = now.Add(365 * 24 * time.Hour)
	if n, _ := s.IncrementAndGet(ctx, "conv", 0); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

func TestCounters_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementAndGet(ctx, "k", time.Hour); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, _ := s.IncrementAndGet(ctx, "k", time.Hour); n != 21 {
		t.Errorf("expected 21, got %d", n)
	}
}

func TestFlags_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	ok, err := s.SetIfAbsent(ctx, "episode:u1:c1", time.Hour)
	if err != nil || !ok {
		t.Fatalf("first set: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.SetIfAbsent(ctx, "episode:u1:c1", time.Hour); ok {
		t.Error("second set should report the flag as present")
	}
	if ok, _ := s.SetIfAbsent(ctx, "episode:u2:c1", time.Hour); !ok {
		t.Error("another user's flag is a different key")
	}

	now = now.Add(time.Hour)
	if ok, _ := s.SetIfAbsent(ctx, "episode:u1:c1", time.Hour); !ok {
		t.Error("expired flag should be settable again")
	}
}

func TestCounters_SurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s1.IncrementAndGet(ctx, "k", time.Hour)
	s1.SetIfAbsent(ctx, "f", 0)
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if n, _ := s2.IncrementAndGet(ctx, "k", time.Hour); n != 2 {
		t.Errorf("expected counter to persist, got %d", n)
	}
	if ok, _ := s2.SetIfAbsent(ctx, "f", 0); ok {
		t.Error("expected flag to persist")
	}
}
