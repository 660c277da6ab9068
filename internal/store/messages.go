package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

// AppendMessage records one conversation message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = model.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (id, conversation_id, user_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.UserID, msg.Role, msg.Content, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Messages returns the user's messages in a conversation in the order they were recorded.
func (s *SQLiteStore) Messages(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, role, content, created_at
		 FROM conversation_messages WHERE user_id = ? AND conversation_id = ?
		 ORDER BY created_at, id`, userID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCounts returns the number of user-role messages and of all messages
// recorded for userID in a conversation.
func (s *SQLiteStore) MessageCounts(ctx context.Context, userID, conversationID string) (user, total int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END), 0), COUNT(*)
		 FROM conversation_messages WHERE user_id = ? AND conversation_id = ?`, userID, conversationID).Scan(&user, &total)
	return user, total, err
}
