// Package search locates a user's active memories by keyword and by
// embedding similarity. It is the lookup used by delete requests.
package search

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/embedding"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
)

const (
	// DefaultMinSimilarity is the cosine similarity a semantic hit must reach.
	DefaultMinSimilarity = 0.6
	DefaultLimit         = 10
)

// Source is the store surface the searcher reads.
type Source interface {
	Search(ctx context.Context, p store.SearchParams) ([]model.MemoryItem, error)
	ActiveItems(ctx context.Context, userID string) ([]model.MemoryItem, error)
}

// Searcher combines keyword and semantic matching.
type Searcher struct {
	source        Source
	embedder      embedding.Embedder
	minSimilarity float64
	limit         int
	logger        *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithMinSimilarity sets the semantic match floor.
func WithMinSimilarity(v float64) Option {
	return func(s *Searcher) { s.minSimilarity = v }
}

// WithLimit caps the number of results.
func WithLimit(n int) Option {
	return func(s *Searcher) { s.limit = n }
}

// New creates a Searcher. A nil embedder disables semantic matching.
func New(source Source, embedder embedding.Embedder, logger *zap.Logger, opts ...Option) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Searcher{
		source:        source,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		limit:         DefaultLimit,
		logger:        logger.With(zap.String("component", "search")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SearchSimilarOrKeyword returns userID's active items matching query.
// Keyword hits come first, then semantic hits by descending similarity.
func (s *Searcher) SearchSimilarOrKeyword(ctx context.Context, userID, query string) ([]model.MemoryItem, error) {
	keyword, err := s.source.Search(ctx, store.SearchParams{UserID: userID, Query: query, Limit: s.limit})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []model.MemoryItem
	add := func(it model.MemoryItem) {
		if seen[it.ID] || it.UserID != userID || !it.IsActive() || len(out) >= s.limit {
			return
		}
		seen[it.ID] = true
		it.Embedding = nil
		out = append(out, it)
	}
	for _, it := range keyword {
		add(it)
	}

	for _, it := range s.semantic(ctx, userID, query) {
		add(it)
	}
	return out, nil
}

func (s *Searcher) semantic(ctx context.Context, userID, query string) []model.MemoryItem {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, using keyword results only", zap.Error(err))
		return nil
	}
	items, err := s.source.ActiveItems(ctx, userID)
	if err != nil {
		s.logger.Warn("loading active items failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	type scored struct {
		item model.MemoryItem
		sim  float64
	}
	var hits []scored
	for _, it := range items {
		if len(it.Embedding) != len(vec) {
			continue
		}
		if sim := embedding.CosineSimilarity(vec, it.Embedding); sim >= s.minSimilarity {
			hits = append(hits, scored{it, sim})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })

	out := make([]model.MemoryItem, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}
