package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string         `json:"db_path"`
	DBSizeBytes int64          `json:"db_size_bytes"`
	UserID      string         `json:"user_id,omitempty"`
	ByStatus    map[string]int `json:"by_status"`
	ActiveTypes map[string]int `json:"active_by_type"`
	AuditEvents int            `json:"audit_events"`
	Messages    int            `json:"messages"`
}

// Stats returns database statistics, scoped to userID when it is non-empty.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath, userID string) (*Stats, error) {
	st := &Stats{
		DBPath:      dbPath,
		UserID:      userID,
		ByStatus:    map[string]int{},
		ActiveTypes: map[string]int{},
	}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	filter, args := "", []any{}
	if userID != "" {
		filter, args = " WHERE user_id = ?", []any{userID}
	}

	if err := s.countInto(ctx, st.ByStatus, `SELECT status, COUNT(*) FROM memory_items`+filter+` GROUP BY status`, args...); err != nil {
		return st, err
	}
	activeFilter := " WHERE status = 'active'"
	if userID != "" {
		activeFilter += " AND user_id = ?"
	}
	if err := s.countInto(ctx, st.ActiveTypes, `SELECT type, COUNT(*) FROM memory_items`+activeFilter+` GROUP BY type`, args...); err != nil {
		return st, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM write_audit`+filter, args...).Scan(&st.AuditEvents); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_messages`+filter, args...).Scan(&st.Messages); err != nil {
		return st, err
	}
	return st, nil
}

func (s *SQLiteStore) countInto(ctx context.Context, dst map[string]int, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}
