// Package collection declares the local study collection the engine reads from: the material
// store, the review log and the importer that turns downloaded archives into material.
package collection

import (
	"context"
	"time"

	"github.com/and161185/decksync/internal/model"
)

// MaterialStore resolves local material (decks) and their cards.
type MaterialStore interface {
	Exists(ctx context.Context, ref int64) (bool, error)
	// CardIDs returns the ids of the cards of ref, optionally including sub-decks.
	CardIDs(ctx context.Context, ref int64, includeChildren bool) ([]int64, error)
	// CardCounts returns the per-state card counts of ref including sub-decks.
	CardCounts(ctx context.Context, ref int64) (model.CardCounts, error)
}

// ReviewLog answers read-only queries over review events.
type ReviewLog interface {
	// Query aggregates events of cardIDs with timestamp >= sinceMs.
	Query(ctx context.Context, cardIDs []int64, sinceMs int64) (model.ReviewAggregate, error)
	// DistinctLocalDates returns the distinct YYYY-MM-DD dates in loc on which any of cardIDs was
	// reviewed, most recent first. The whole history is considered.
	DistinctLocalDates(ctx context.Context, cardIDs []int64, loc *time.Location) ([]string, error)
}

// Importer turns a downloaded deck archive into local material and returns its reference.
type Importer interface {
	Import(ctx context.Context, title string, archive []byte) (int64, error)
}
