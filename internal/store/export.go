package store

import (
	"context"
	"time"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

// Export is a point-in-time dump of everything stored for one user.
type Export struct {
	UserID     string                  `json:"user_id"`
	ExportedAt time.Time               `json:"exported_at"`
	Items      []model.MemoryItem      `json:"items"`
	Audit      []model.WriteAuditEvent `json:"audit"`
}

const exportLimit = 1 << 30

// ExportUser returns every item of the user in any status, without
// embeddings, plus the user's full audit trail.
func (s *SQLiteStore) ExportUser(ctx context.Context, userID string) (*Export, error) {
	items, err := s.ListItems(ctx, ListParams{UserID: userID, All: true, Limit: exportLimit})
	if err != nil {
		return nil, err
	}
	audit, err := s.ListAudit(ctx, AuditParams{UserID: userID, Limit: exportLimit})
	if err != nil {
		return nil, err
	}
	return &Export{
		UserID:     userID,
		ExportedAt: time.Now().UTC(),
		Items:      items,
		Audit:      audit,
	}, nil
}
