package store

import (
	"context"
	"strings"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

// SearchParams holds parameters for keyword search.
type SearchParams struct {
	UserID string
	Query  string
	Type   model.MemoryType
	Limit  int
}

// Search finds the user's active memories whose content contains every
// word of the query (case-insensitive).
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.MemoryItem, error) {
	terms := strings.Fields(p.Query)
	if len(terms) == 0 {
		return nil, nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"user_id = ?", "status = 'active'"}
	args := []any{p.UserID}
	if p.Type != "" {
		where = append(where, "type = ?")
		args = append(args, p.Type)
	}
	for _, t := range terms {
		where = append(where, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(t)+"%")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM memory_items
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.MemoryItem
	for rows.Next() {
		m, err := scanItem(rows, nil)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
