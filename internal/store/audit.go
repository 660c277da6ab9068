package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

// ListAudit returns audit events matching the filters in insertion order.
func (s *SQLiteStore) ListAudit(ctx context.Context, p AuditParams) ([]model.WriteAuditEvent, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	where := []string{"1 = 1"}
	var args []any
	if p.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, p.UserID)
	}
	if p.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, p.CorrelationID)
	}
	if p.MemoryID != "" {
		where = append(where, "memory_id = ?")
		args = append(args, p.MemoryID)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, memory_id, user_id, operation, outcome, confidence, before_content, after_content,
		        correlation_id, duration_ms, error, created_at
		 FROM write_audit WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at, rowid LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.WriteAuditEvent
	for rows.Next() {
		var ev model.WriteAuditEvent
		var memoryID, before, after, errText sql.NullString
		var durationMS float64
		var createdAt string
		if err := rows.Scan(&ev.ID, &memoryID, &ev.UserID, &ev.Operation, &ev.Outcome, &ev.Confidence,
			&before, &after, &ev.CorrelationID, &durationMS, &errText, &createdAt); err != nil {
			return nil, err
		}
		ev.MemoryID = memoryID.String
		ev.Error = errText.String
		if before.Valid {
			ev.BeforeContent = &before.String
		}
		if after.Valid {
			ev.AfterContent = &after.String
		}
		ev.Duration = time.Duration(durationMS * float64(time.Millisecond))
		ev.CreatedAt = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
