package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore provides atomic increment semantics.
type CounterStore interface {
	// IncrementAndGet atomically increments key and returns the new value.
	// A positive ttl is applied when the key is created; zero means no expiry.
	IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// FlagStore sets one-shot markers.
type FlagStore interface {
	// SetIfAbsent sets key and reports whether this call set it.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisStore implements CounterStore and FlagStore on Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. Every key is prefixed with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// incrWithTTL increments KEYS[1] and, when ARGV[1] > 0, gives it that TTL in
// milliseconds if it has none. A counter left without an expiry regains one
// on its next increment.
var incrWithTTL = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	local ttl = tonumber(ARGV[1])
	if ttl > 0 and redis.call('PTTL', KEYS[1]) == -1 then
		redis.call('PEXPIRE', KEYS[1], ttl)
	end
	return n
`)

// IncrementAndGet implements CounterStore.
func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	key = s.prefix + key
	n, err := incrWithTTL.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

// SetIfAbsent implements FlagStore.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	key = s.prefix + key
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// MemoryStore implements CounterStore and FlagStore in process memory.
// Counters do not outlive the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// get returns the live entry for key, dropping it if expired. Caller holds mu.
func (s *MemoryStore) get(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// IncrementAndGet implements CounterStore.
func (s *MemoryStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		e = &memEntry{}
		if ttl > 0 {
			e.expiresAt = s.now().Add(ttl)
		}
		s.entries[key] = e
	}
	e.value++
	return e.value, nil
}

// SetIfAbsent implements FlagStore.
func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.get(key) != nil {
		return false, nil
	}
	e := &memEntry{value: 1}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return true, nil
}
