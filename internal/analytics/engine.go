// Package analytics derives per-deck study statistics from the local review log.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/collection"
	"github.com/and161185/decksync/internal/model"
)

// DefaultWindowDays is the trailing window for review aggregates and retention.
const DefaultWindowDays = 30

// Engine computes snapshots. It is safe for concurrent use if its collaborators are.
type Engine struct {
	material collection.MaterialStore
	reviews  collection.ReviewLog
	log      *zap.Logger

	windowDays int
	now        func() time.Time
	loc        *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithWindowDays sets the trailing window; non-positive values are ignored.
func WithWindowDays(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.windowDays = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone that defines calendar days for streaks and last study dates.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// New constructs an Engine. log may be nil.
func New(material collection.MaterialStore, reviews collection.ReviewLog, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		material:   material,
		reviews:    reviews,
		log:        log,
		windowDays: DefaultWindowDays,
		now:        time.Now,
		loc:        time.Local,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Snapshot builds the progress payload of one tracked deck. Missing material yields a zero
// snapshot rather than an error.
func (e *Engine) Snapshot(ctx context.Context, deck model.TrackedDeck) (model.ProgressSnapshot, error) {
	snap := model.ProgressSnapshot{DeckID: deck.DeckID, SyncedAt: e.now().UTC()}

	cards, ok, err := e.cards(ctx, deck.LocalRef)
	if err != nil || !ok {
		return snap, err
	}
	counts, err := e.material.CardCounts(ctx, deck.LocalRef)
	if err != nil {
		return snap, fmt.Errorf("card counts: %w", err)
	}
	snap.TotalCards = counts.Total
	snap.CardsMastered = counts.Review
	if len(cards) == 0 {
		return snap, nil
	}

	agg, err := e.aggregate(ctx, cards)
	if err != nil {
		return snap, err
	}
	stats := e.statsFrom(agg)
	snap.TotalCardsStudied = stats.TotalReviews
	snap.NewCardsStudied = stats.NewCards
	snap.AverageEase = stats.AverageEase
	snap.StudyTimeMinutes = stats.StudyTimeMinutes
	snap.LastStudyDate = stats.LastStudyDate
	snap.RetentionRate = retention(agg)

	streak, err := e.streak(ctx, cards)
	if err != nil {
		return snap, err
	}
	snap.CurrentStreakDays = streak
	return snap, nil
}

// ReviewStats returns the windowed review summary of the material ref.
func (e *Engine) ReviewStats(ctx context.Context, ref int64) (model.ReviewStats, error) {
	cards, ok, err := e.cards(ctx, ref)
	if err != nil || !ok || len(cards) == 0 {
		return model.ReviewStats{}, err
	}
	agg, err := e.aggregate(ctx, cards)
	if err != nil {
		return model.ReviewStats{}, err
	}
	return e.statsFrom(agg), nil
}

// RetentionRate returns the percentage of windowed reviews with ease >= 2, in [0, 100].
func (e *Engine) RetentionRate(ctx context.Context, ref int64) (float64, error) {
	cards, ok, err := e.cards(ctx, ref)
	if err != nil || !ok || len(cards) == 0 {
		return 0, err
	}
	agg, err := e.aggregate(ctx, cards)
	if err != nil {
		return 0, err
	}
	return retention(agg), nil
}

// Streak returns the current study streak of the material ref in days.
func (e *Engine) Streak(ctx context.Context, ref int64) (int, error) {
	cards, ok, err := e.cards(ctx, ref)
	if err != nil || !ok || len(cards) == 0 {
		return 0, err
	}
	return e.streak(ctx, cards)
}

// cards resolves the card ids of ref including sub-decks. It reports false if ref is gone.
func (e *Engine) cards(ctx context.Context, ref int64) ([]int64, bool, error) {
	if ref <= 0 {
		return nil, false, nil
	}
	ok, err := e.material.Exists(ctx, ref)
	if err != nil {
		return nil, false, fmt.Errorf("material %d: %w", ref, err)
	}
	if !ok {
		e.log.Debug("material missing, zero stats", zap.Int64("ref", ref))
		return nil, false, nil
	}
	ids, err := e.material.CardIDs(ctx, ref, true)
	if err != nil {
		return nil, false, fmt.Errorf("card ids of %d: %w", ref, err)
	}
	return ids, true, nil
}

func (e *Engine) aggregate(ctx context.Context, cards []int64) (model.ReviewAggregate, error) {
	since := e.now().Add(-time.Duration(e.windowDays) * 24 * time.Hour).UnixMilli()
	agg, err := e.reviews.Query(ctx, cards, since)
	if err != nil {
		return model.ReviewAggregate{}, fmt.Errorf("review query: %w", err)
	}
	return agg, nil
}

func (e *Engine) statsFrom(agg model.ReviewAggregate) model.ReviewStats {
	if agg.Count == 0 {
		return model.ReviewStats{}
	}
	st := model.ReviewStats{
		TotalReviews:     agg.Count,
		NewCards:         agg.NewCount,
		AverageEase:      round2(agg.AvgEase),
		StudyTimeMinutes: round2(float64(agg.TotalDurationMs) / 60000),
	}
	if agg.LastEventMs > 0 {
		t := time.UnixMilli(agg.LastEventMs).In(e.loc)
		st.LastStudyDate = &t
	}
	return st
}

func (e *Engine) streak(ctx context.Context, cards []int64) (int, error) {
	dates, err := e.reviews.DistinctLocalDates(ctx, cards, e.loc)
	if err != nil {
		return 0, fmt.Errorf("review dates: %w", err)
	}
	return CurrentStreak(dates, e.now().In(e.loc)), nil
}

func retention(agg model.ReviewAggregate) float64 {
	if agg.Count <= 0 {
		return 0
	}
	r := round2(100 * float64(agg.CorrectCount) / float64(agg.Count))
	return math.Max(0, math.Min(100, r))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// CurrentStreak counts consecutive calendar days ending today or yesterday that appear in dates
// (YYYY-MM-DD). The calendar day of today is taken in today's location. Unparsable dates are
// skipped; order and duplicates in dates do not matter.
func CurrentStreak(dates []string, today time.Time) int {
	days := make([]time.Time, 0, len(dates))
	for _, s := range dates {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	y, m, d := today.Date()
	todayDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	yesterday := todayDay.AddDate(0, 0, -1)
	if !days[0].Equal(todayDay) && !days[0].Equal(yesterday) {
		return 0
	}

	streak := 1
	prev := days[0]
	for _, day := range days[1:] {
		switch {
		case day.Equal(prev):
			continue
		case day.Equal(prev.AddDate(0, 0, -1)):
			streak++
			prev = day
		default:
			return streak
		}
	}
	return streak
}
