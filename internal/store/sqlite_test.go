package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newItem(userID, content string) *model.MemoryItem {
	return &model.MemoryItem{
		UserID:     userID,
		Content:    content,
		Type:       model.TypePreference,
		Confidence: 0.9,
		Importance: 0.5,
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
}

func mustInsert(t *testing.T, s *SQLiteStore, item *model.MemoryItem) *model.MemoryItem {
	t.Helper()
	if err := s.InsertItem(context.Background(), item, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return item
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	item := newItem("u1", "I'm a vegetarian")
	item.ID = model.NewID()
	err := s.InsertItem(ctx, item, &model.WriteAuditEvent{
		MemoryID: item.ID, UserID: "u1", Operation: model.OpCreate, Confidence: 0.9, CorrelationID: "c-1",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if item.ID == "" {
		t.Error("expected non-empty ID")
	}

	got, err := s.GetItem(ctx, "u1", item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "I'm a vegetarian" || got.Status != model.StatusActive || got.Type != model.TypePreference {
		t.Errorf("unexpected item: %+v", got)
	}

	// Another user cannot read it.
	if _, err := s.GetItem(ctx, "u2", item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}

	events, _ := s.ListAudit(ctx, AuditParams{CorrelationID: "c-1"})
	if len(events) != 1 || events[0].MemoryID != item.ID {
		t.Fatalf("expected one audit event for item, got %+v", events)
	}
}

func TestActiveItemsCarryEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustInsert(t, s, newItem("u1", "a"))
	mustInsert(t, s, newItem("u2", "b"))

	items, err := s.ActiveItems(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item for u1, got %d", len(items))
	}
	if len(items[0].Embedding) != 3 || items[0].Embedding[2] != 0.3 {
		t.Errorf("embedding not round-tripped: %v", items[0].Embedding)
	}
}

func TestSupersede(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := mustInsert(t, s, newItem("u1", "I prefer Python"))
	next := newItem("u1", "I prefer Rust now")
	next.ID = model.NewID()

	prev, err := s.SupersedeItem(ctx, "u1", old.ID, next,
		&model.WriteAuditEvent{MemoryID: old.ID, UserID: "u1", Operation: model.OpSupersede, Outcome: model.OutcomeSuperseded, CorrelationID: "c-2"},
		&model.WriteAuditEvent{MemoryID: next.ID, UserID: "u1", Operation: model.OpCreate, CorrelationID: "c-2"})
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if prev.Content != "I prefer Python" {
		t.Errorf("expected previous content, got %q", prev.Content)
	}

	gotOld, _ := s.GetItem(ctx, "u1", old.ID)
	if gotOld.Status != model.StatusSuperseded || gotOld.SupersededBy != next.ID {
		t.Errorf("old item not superseded: %+v", gotOld)
	}
	gotNew, _ := s.GetItem(ctx, "u1", next.ID)
	if gotNew.Status != model.StatusActive {
		t.Errorf("new item should be active, got %s", gotNew.Status)
	}
	if !gotNew.CreatedAt.After(gotOld.CreatedAt) {
		t.Errorf("new item must be created after the old one")
	}

	active, _ := s.ListItems(ctx, ListParams{UserID: "u1"})
	if len(active) != 1 || active[0].ID != next.ID {
		t.Fatalf("expected only the new item active, got %+v", active)
	}

	events, _ := s.ListAudit(ctx, AuditParams{CorrelationID: "c-2"})
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].BeforeContent == nil || *events[0].BeforeContent != "I prefer Python" {
		t.Errorf("supersede audit should snapshot old content")
	}
}

func TestSupersedeTerminalStates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := mustInsert(t, s, newItem("u1", "v1"))
	v2 := newItem("u1", "v2")
	if _, err := s.SupersedeItem(ctx, "u1", old.ID, v2, nil, nil); err != nil {
		t.Fatalf("supersede: %v", err)
	}

	// An already superseded item is never mutated again.
	v3 := newItem("u1", "v3")
	v3.ID = model.NewID()
	_, err := s.SupersedeItem(ctx, "u1", old.ID, v3, nil, nil)
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if _, err := s.GetItem(ctx, "u1", v3.ID); !errors.Is(err, ErrNotFound) {
		t.Error("failed supersede must not leave the new item behind")
	}

	// Nor can it be deleted.
	if _, err := s.SoftDeleteItem(ctx, "u1", old.ID, nil); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive on delete, got %v", err)
	}
}

func TestSupersedeOtherUsersItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	theirs := mustInsert(t, s, newItem("u2", "secret"))
	_, err := s.SupersedeItem(ctx, "u1", theirs.ID, newItem("u1", "mine"), nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, _ := s.GetItem(ctx, "u2", theirs.ID)
	if got.Status != model.StatusActive {
		t.Error("other user's item must stay active")
	}
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	item := mustInsert(t, s, newItem("u1", "data"))
	deleted, err := s.SoftDeleteItem(ctx, "u1", item.ID, &model.WriteAuditEvent{
		MemoryID: item.ID, UserID: "u1", Operation: model.OpDelete, Outcome: model.OutcomeDeleted, CorrelationID: "c-3",
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Status != model.StatusDeleted || deleted.DeletedAt == nil {
		t.Errorf("unexpected deleted item: %+v", deleted)
	}

	// Row is kept.
	got, err := s.GetItem(ctx, "u1", item.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got.Status != model.StatusDeleted || got.DeletedAt == nil {
		t.Errorf("expected soft-deleted row, got %+v", got)
	}

	active, _ := s.ListItems(ctx, ListParams{UserID: "u1"})
	if len(active) != 0 {
		t.Errorf("expected no active items, got %d", len(active))
	}
	all, _ := s.ListItems(ctx, ListParams{UserID: "u1", All: true})
	if len(all) != 1 {
		t.Errorf("expected 1 item with All, got %d", len(all))
	}

	events, _ := s.ListAudit(ctx, AuditParams{MemoryID: item.ID})
	if len(events) != 1 || events[0].BeforeContent == nil || *events[0].BeforeContent != "data" {
		t.Errorf("expected delete audit with before snapshot, got %+v", events)
	}
}

func TestSoftDeleteOtherUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	item := mustInsert(t, s, newItem("u2", "theirs"))
	if _, err := s.SoftDeleteItem(ctx, "u1", item.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	owner, err := s.OwnerOf(ctx, item.ID)
	if err != nil || owner != "u2" {
		t.Errorf("expected owner u2, got %q (%v)", owner, err)
	}
	got, _ := s.GetItem(ctx, "u2", item.ID)
	if got.Status != model.StatusActive {
		t.Error("other user's item must not be mutated")
	}
}

func TestAuditIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := &model.WriteAuditEvent{UserID: "u1", Operation: model.OpCreate, Outcome: model.OutcomeFailed, CorrelationID: "c", Error: "boom"}
	if err := s.InsertAudit(ctx, ev); err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE write_audit SET outcome = 'created'`); err == nil {
		t.Error("expected update of audit row to fail")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM write_audit`); err == nil {
		t.Error("expected delete of audit row to fail")
	}

	events, _ := s.ListAudit(ctx, AuditParams{UserID: "u1"})
	if len(events) != 1 || events[0].MemoryID != "" || events[0].Error != "boom" {
		t.Errorf("unexpected audit events: %+v", events)
	}
}

func TestHistoryWalksForward(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v1 := mustInsert(t, s, newItem("u1", "v1"))
	v2 := newItem("u1", "v2")
	s.SupersedeItem(ctx, "u1", v1.ID, v2, nil, nil)
	v3 := newItem("u1", "v3")
	s.SupersedeItem(ctx, "u1", v2.ID, v3, nil, nil)

	chain, err := s.History(ctx, "u1", v1.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(chain) != 3 || chain[0].Content != "v1" || chain[2].Content != "v3" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
	if chain[2].Status != model.StatusActive {
		t.Error("chain should end at the active item")
	}

	// Starting mid-chain never walks backward.
	chain, _ = s.History(ctx, "u1", v2.ID)
	if len(chain) != 2 || chain[0].Content != "v2" {
		t.Errorf("unexpected chain from v2: %+v", chain)
	}

	if _, err := s.History(ctx, "u2", v1.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("history must be user scoped, got %v", err)
	}
}

func TestListByType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustInsert(t, s, newItem("u1", "likes tea"))
	fact := newItem("u1", "lives in Oslo")
	fact.Type = model.TypeFact
	mustInsert(t, s, fact)

	facts, _ := s.ListItems(ctx, ListParams{UserID: "u1", Type: model.TypeFact})
	if len(facts) != 1 || facts[0].Content != "lives in Oslo" {
		t.Errorf("unexpected facts: %+v", facts)
	}
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC()
	for i, role := range []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser} {
		err := s.AppendMessage(ctx, &model.Message{
			ConversationID: "conv", UserID: "u1", Role: role, Content: string(role),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	s.AppendMessage(ctx, &model.Message{ConversationID: "other", UserID: "u1", Role: model.RoleUser, Content: "x"})
	s.AppendMessage(ctx, &model.Message{ConversationID: "conv", UserID: "u2", Role: model.RoleUser, Content: "y"})

	user, total, err := s.MessageCounts(ctx, "u1", "conv")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if user != 2 || total != 3 {
		t.Errorf("expected 2/3, got %d/%d", user, total)
	}

	msgs, _ := s.Messages(ctx, "u1", "conv")
	if len(msgs) != 3 || msgs[1].Role != model.RoleAssistant {
		t.Errorf("unexpected messages: %+v", msgs)
	}

	user, total, _ = s.MessageCounts(ctx, "u2", "conv")
	if user != 1 || total != 1 {
		t.Errorf("expected u2 to count only its own message, got %d/%d", user, total)
	}

	user, total, _ = s.MessageCounts(ctx, "u1", "empty")
	if user != 0 || total != 0 {
		t.Errorf("expected zero counts, got %d/%d", user, total)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
