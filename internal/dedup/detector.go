// Package dedup finds an existing active memory that is semantically the same
// as new content.
package dedup

import (
	"context"
	"fmt"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/embedding"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

// DefaultThreshold is the cosine similarity at or above which two memories
// are considered duplicates.
const DefaultThreshold = 0.92

// ItemSource lists a user's active items with their vectors.
type ItemSource interface {
	ActiveItems(ctx context.Context, userID string) ([]model.MemoryItem, error)
}

// Match is the best duplicate candidate.
type Match struct {
	Item       model.MemoryItem
	Similarity float64
}

// Detector scans a user's active items for the closest match.
type Detector struct {
	items     ItemSource
	threshold float64
}

// NewDetector creates a Detector. A non-positive threshold uses DefaultThreshold.
func NewDetector(items ItemSource, threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{items: items, threshold: threshold}
}

// Threshold returns the configured similarity threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// FindDuplicate returns the highest-similarity active item of userID whose
// similarity to vec meets the threshold, or nil.
func (d *Detector) FindDuplicate(ctx context.Context, userID string, vec embedding.Vector) (*Match, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	items, err := d.items.ActiveItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load active items: %w", err)
	}

	var best *Match
	for i := range items {
		it := items[i]
		// Only the user's own active items may match.
		if it.UserID != userID || !it.IsActive() || len(it.Embedding) != len(vec) {
			continue
		}
		sim := embedding.CosineSimilarity(vec, it.Embedding)
		if sim < d.threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{Item: it, Similarity: sim}
		}
	}
	return best, nil
}
