package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Background writes run concurrently; one connection serializes them
	// at the driver instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_items (
		id                     TEXT PRIMARY KEY,
		user_id                TEXT NOT NULL,
		content                TEXT NOT NULL,
		type                   TEXT NOT NULL,
		confidence             REAL NOT NULL,
		importance             REAL NOT NULL DEFAULT 0.5,
		status                 TEXT NOT NULL DEFAULT 'active',
		superseded_by          TEXT REFERENCES memory_items(id),
		source_conversation_id TEXT,
		source_message_id      TEXT,
		embedding              BLOB,
		created_at             TEXT NOT NULL,
		updated_at             TEXT NOT NULL,
		deleted_at             TEXT,
		CHECK (status IN ('active', 'superseded', 'deleted')),
		CHECK ((status = 'superseded') = (superseded_by IS NOT NULL)),
		CHECK (superseded_by IS NULL OR superseded_by != id)
	);
	CREATE INDEX IF NOT EXISTS idx_items_user_status ON memory_items(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_items_user_type ON memory_items(user_id, type);
	CREATE INDEX IF NOT EXISTS idx_items_created ON memory_items(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_items_source ON memory_items(source_conversation_id);

	CREATE TABLE IF NOT EXISTS write_audit (
		id             TEXT PRIMARY KEY,
		memory_id      TEXT,
		user_id        TEXT NOT NULL,
		operation      TEXT NOT NULL,
		outcome        TEXT NOT NULL,
		confidence     REAL NOT NULL,
		before_content TEXT,
		after_content  TEXT,
		correlation_id TEXT NOT NULL,
		duration_ms    REAL NOT NULL,
		error          TEXT,
		created_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_user ON write_audit(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_correlation ON write_audit(correlation_id);
	CREATE INDEX IF NOT EXISTS idx_audit_memory ON write_audit(memory_id);

	CREATE TRIGGER IF NOT EXISTS write_audit_no_update BEFORE UPDATE ON write_audit BEGIN
		SELECT RAISE(ABORT, 'write_audit is append-only');
	END;
	CREATE TRIGGER IF NOT EXISTS write_audit_no_delete BEFORE DELETE ON write_audit BEGIN
		SELECT RAISE(ABORT, 'write_audit is append-only');
	END;

	CREATE TABLE IF NOT EXISTS conversation_messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user_conversation ON conversation_messages(user_id, conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS counters (
		key        TEXT PRIMARY KEY,
		value      INTEGER NOT NULL,
		expires_at INTEGER
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const itemCols = `id, user_id, content, type, confidence, importance, status, superseded_by,
	source_conversation_id, source_message_id, created_at, updated_at, deleted_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertItem writes a new active item and its audit event in one transaction.
func (s *SQLiteStore) InsertItem(ctx context.Context, item *model.MemoryItem, audit *model.WriteAuditEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertItem(ctx, tx, item); err != nil {
		return err
	}
	if audit != nil {
		if err := insertAudit(ctx, tx, audit); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SupersedeItem replaces an active item with a new one. The old row only ever
// moves forward to a newer item: it must be active, owned by userID, and
// created strictly before item.
func (s *SQLiteStore) SupersedeItem(ctx context.Context, userID, oldID string, item *model.MemoryItem, supersedeAudit, createAudit *model.WriteAuditEvent) (*model.MemoryItem, error) {
	if item.UserID != userID {
		return nil, fmt.Errorf("supersede: new item owner %q does not match %q", item.UserID, userID)
	}
	if item.ID == oldID {
		return nil, fmt.Errorf("supersede: item cannot supersede itself")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	old, err := getItem(ctx, tx, userID, oldID)
	if err != nil {
		return nil, err
	}
	if !old.IsActive() {
		return nil, fmt.Errorf("supersede %s: %w", oldID, ErrNotActive)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if !item.CreatedAt.After(old.CreatedAt) {
		item.CreatedAt = old.CreatedAt.Add(time.Microsecond)
		item.UpdatedAt = item.CreatedAt
	}

	if err := insertItem(ctx, tx, item); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE memory_items SET status = 'superseded', superseded_by = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND status = 'active'`,
		item.ID, formatTime(item.CreatedAt), oldID, userID)
	if err != nil {
		return nil, fmt.Errorf("mark superseded: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, fmt.Errorf("supersede %s: %w", oldID, ErrNotActive)
	}

	if supersedeAudit != nil {
		if supersedeAudit.BeforeContent == nil {
			supersedeAudit.BeforeContent = &old.Content
		}
		if err := insertAudit(ctx, tx, supersedeAudit); err != nil {
			return nil, err
		}
	}
	if createAudit != nil {
		if err := insertAudit(ctx, tx, createAudit); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return old, nil
}

// SoftDeleteItem marks an item deleted. Items owned by another user are
// reported as ErrNotFound and never touched.
func (s *SQLiteStore) SoftDeleteItem(ctx context.Context, userID, id string, audit *model.WriteAuditEvent) (*model.MemoryItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	item, err := getItem(ctx, tx, userID, id)
	if err != nil {
		return nil, err
	}
	if !item.IsActive() {
		return nil, fmt.Errorf("delete %s: %w", id, ErrNotActive)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE memory_items SET status = 'deleted', deleted_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND status = 'active'`,
		formatTime(now), formatTime(now), id, userID)
	if err != nil {
		return nil, fmt.Errorf("mark deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, fmt.Errorf("delete %s: %w", id, ErrNotActive)
	}

	if audit != nil {
		if audit.BeforeContent == nil {
			audit.BeforeContent = &item.Content
		}
		if err := insertAudit(ctx, tx, audit); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	item.Status = model.StatusDeleted
	item.DeletedAt = &now
	item.UpdatedAt = now
	return item, nil
}

// InsertAudit appends a standalone audit event.
func (s *SQLiteStore) InsertAudit(ctx context.Context, ev *model.WriteAuditEvent) error {
	return insertAudit(ctx, s.db, ev)
}

// GetItem returns an item owned by userID in any status.
func (s *SQLiteStore) GetItem(ctx context.Context, userID, id string) (*model.MemoryItem, error) {
	return getItem(ctx, s.db, userID, id)
}

// OwnerOf returns the owning user of an item. Used only to classify a
// rejected cross-user mutation for logging.
func (s *SQLiteStore) OwnerOf(ctx context.Context, id string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM memory_items WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return owner, err
}

// ActiveItems returns every active item of the user, embeddings included.
func (s *SQLiteStore) ActiveItems(ctx context.Context, userID string) ([]model.MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+`, embedding FROM memory_items
		 WHERE user_id = ? AND status = 'active'
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.MemoryItem
	for rows.Next() {
		var blob []byte
		m, err := scanItem(rows, &blob)
		if err != nil {
			return nil, err
		}
		m.Embedding = decodeVector(blob)
		items = append(items, m)
	}
	return items, rows.Err()
}

// ListItems lists a user's items, newest first.
func (s *SQLiteStore) ListItems(ctx context.Context, p ListParams) ([]model.MemoryItem, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"user_id = ?"}
	args := []any{p.UserID}
	if !p.All {
		status := p.Status
		if status == "" {
			status = model.StatusActive
		}
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if p.Type != "" {
		where = append(where, "type = ?")
		args = append(args, p.Type)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM memory_items WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.MemoryItem
	for rows.Next() {
		m, err := scanItem(rows, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// History returns the supersession chain starting at id and following
// superseded_by forward to the newest version. The walk is bounded by the
// number of items the user owns.
func (s *SQLiteStore) History(ctx context.Context, userID, id string) ([]model.MemoryItem, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_items WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, err
	}

	var chain []model.MemoryItem
	seen := map[string]bool{}
	next := id
	for next != "" && len(chain) <= total {
		if seen[next] {
			return nil, fmt.Errorf("supersession cycle at %s", next)
		}
		seen[next] = true

		item, err := getItem(ctx, s.db, userID, next)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			break
		}
		chain = append(chain, *item)
		next = item.SupersededBy
	}
	return chain, nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func insertItem(ctx context.Context, q querier, m *model.MemoryItem) error {
	if m.ID == "" {
		m.ID = model.NewID()
	}
	if m.Status == "" {
		m.Status = model.StatusActive
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO memory_items (id, user_id, content, type, confidence, importance, status,
		                           source_conversation_id, source_message_id, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Content, m.Type, m.Confidence, m.Importance, m.Status,
		nullString(m.SourceConversationID), nullString(m.SourceMessageID), encodeVector(m.Embedding),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func insertAudit(ctx context.Context, q querier, ev *model.WriteAuditEvent) error {
	if ev.ID == "" {
		ev.ID = "audit-" + uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Outcome == "" {
		ev.Outcome = model.OutcomeCreated
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO write_audit (id, memory_id, user_id, operation, outcome, confidence,
		                          before_content, after_content, correlation_id, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, nullString(ev.MemoryID), ev.UserID, ev.Operation, ev.Outcome, ev.Confidence,
		ev.BeforeContent, ev.AfterContent, ev.CorrelationID,
		float64(ev.Duration)/float64(time.Millisecond), nullString(ev.Error), formatTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func getItem(ctx context.Context, q querier, userID, id string) (*model.MemoryItem, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM memory_items WHERE id = ? AND user_id = ?`, id, userID)
	m, err := scanItem(row, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanItem reads itemCols, plus the embedding blob when blob is non-nil.
func scanItem(row scanner, blob *[]byte) (model.MemoryItem, error) {
	var m model.MemoryItem
	var supersededBy, convID, msgID, deletedAt sql.NullString
	var createdAt, updatedAt string

	dest := []any{
		&m.ID, &m.UserID, &m.Content, &m.Type, &m.Confidence, &m.Importance, &m.Status,
		&supersededBy, &convID, &msgID, &createdAt, &updatedAt, &deletedAt,
	}
	if blob != nil {
		dest = append(dest, blob)
	}
	if err := row.Scan(dest...); err != nil {
		return m, err
	}

	m.SupersededBy = supersededBy.String
	m.SourceConversationID = convID.String
	m.SourceMessageID = msgID.String
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		m.DeletedAt = &t
	}
	return m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodeVector stores a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
