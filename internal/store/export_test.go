package store

import (
	"context"
	"testing"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

func TestExportUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	kept := newItem("u1", "likes tea")
	kept.ID = model.NewID()
	if err := s.InsertItem(ctx, kept, &model.WriteAuditEvent{
		MemoryID: kept.ID, UserID: "u1", Operation: model.OpCreate, Confidence: 0.9, CorrelationID: "c-1",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	gone := mustInsert(t, s, newItem("u1", "likes coffee"))
	if _, err := s.SoftDeleteItem(ctx, "u1", gone.ID, &model.WriteAuditEvent{
		MemoryID: gone.ID, UserID: "u1", Operation: model.OpDelete, CorrelationID: "c-2",
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mustInsert(t, s, newItem("u2", "someone else"))

	exp, err := s.ExportUser(ctx, "u1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.UserID != "u1" {
		t.Errorf("expected user u1, got %q", exp.UserID)
	}
	if len(exp.Items) != 2 {
		t.Fatalf("expected 2 items across statuses, got %d", len(exp.Items))
	}
	for _, it := range exp.Items {
		if it.UserID != "u1" {
			t.Errorf("exported another user's item: %+v", it)
		}
		if it.Embedding != nil {
			t.Errorf("export should not carry embeddings")
		}
	}
	if len(exp.Audit) != 2 {
		t.Errorf("expected 2 audit events, got %d", len(exp.Audit))
	}
}
