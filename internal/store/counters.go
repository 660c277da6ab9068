package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// The counters table backs rate-limit counters and episode flags when no
// Redis is configured, so separate processes on one database share them.
// expires_at is unix nanoseconds; NULL never expires.

// IncrementAndGet atomically increments key and returns the new value. An
// expired counter restarts at 1 with a fresh ttl; zero ttl means no expiry.
func (s *SQLiteStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	var n int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters (key, value, expires_at) VALUES (?1, 1, ?2)
		 ON CONFLICT(key) DO UPDATE SET
		   value      = CASE WHEN expires_at IS NOT NULL AND expires_at <= ?3 THEN 1 ELSE value + 1 END,
		   expires_at = CASE WHEN expires_at IS NOT NULL AND expires_at <= ?3 THEN excluded.expires_at
		                     WHEN expires_at IS NULL THEN excluded.expires_at
		                     ELSE expires_at END
		 RETURNING value`,
		key, expiry(now, ttl), now.UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return n, nil
}

// SetIfAbsent sets key and reports whether this call set it. An expired flag
// counts as absent.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO counters (key, value, expires_at) VALUES (?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET value = 1, expires_at = excluded.expires_at
		 WHERE counters.expires_at IS NOT NULL AND counters.expires_at <= ?`,
		key, expiry(now, ttl), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("set flag %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func expiry(now time.Time, ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: now.Add(ttl).UnixNano(), Valid: true}
}
