package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// ProgressRepo implements ProgressRepository using PostgreSQL.
type ProgressRepo struct{ db *DB }

// NewProgressRepo constructs a progress repository.
func NewProgressRepo(db *DB) *ProgressRepo { return &ProgressRepo{db: db} }

const upsertProgress = `
INSERT INTO progress (user_id, deck_id, total_cards, total_cards_studied, new_cards_studied,
  cards_mastered, average_ease, study_time_minutes, last_study_date, retention_rate,
  current_streak_days, synced_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (user_id, deck_id) DO UPDATE SET
  total_cards=EXCLUDED.total_cards,
  total_cards_studied=EXCLUDED.total_cards_studied,
  new_cards_studied=EXCLUDED.new_cards_studied,
  cards_mastered=EXCLUDED.cards_mastered,
  average_ease=EXCLUDED.average_ease,
  study_time_minutes=EXCLUDED.study_time_minutes,
  last_study_date=EXCLUDED.last_study_date,
  retention_rate=EXCLUDED.retention_rate,
  current_streak_days=EXCLUDED.current_streak_days,
  synced_at=EXCLUDED.synced_at`

// Upsert writes all snapshots in one transaction.
func (r *ProgressRepo) Upsert(ctx context.Context, userID uuid.UUID, snaps []model.ProgressSnapshot) (n int, err error) {
	if len(snaps) == 0 {
		return 0, nil
	}
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			n, err = 0, e
		}
	}()

	for i, s := range snaps {
		deckID, perr := uuid.FromString(s.DeckID)
		if perr != nil {
			return 0, fmt.Errorf("progress[%d]: deck id %q: %w", i, s.DeckID, perr)
		}
		if _, err = tx.Exec(ctx, upsertProgress, userID, deckID,
			s.TotalCards, s.TotalCardsStudied, s.NewCardsStudied, s.CardsMastered,
			s.AverageEase, s.StudyTimeMinutes, s.LastStudyDate, s.RetentionRate,
			s.CurrentStreakDays, s.SyncedAt); err != nil {
			return 0, fmt.Errorf("progress[%d]: %w", i, err)
		}
		n++
	}
	return n, nil
}

// Get returns the stored snapshot for one deck.
func (r *ProgressRepo) Get(ctx context.Context, userID, deckID uuid.UUID) (model.ProgressSnapshot, error) {
	const q = `
SELECT total_cards, total_cards_studied, new_cards_studied, cards_mastered, average_ease,
  study_time_minutes, last_study_date, retention_rate, current_streak_days, synced_at
FROM progress WHERE user_id=$1 AND deck_id=$2`
	s := model.ProgressSnapshot{DeckID: deckID.String()}
	err := r.db.Pool.QueryRow(ctx, q, userID, deckID).Scan(
		&s.TotalCards, &s.TotalCardsStudied, &s.NewCardsStudied, &s.CardsMastered, &s.AverageEase,
		&s.StudyTimeMinutes, &s.LastStudyDate, &s.RetentionRate, &s.CurrentStreakDays, &s.SyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProgressSnapshot{}, errs.ErrNotFound
	}
	return s, err
}
