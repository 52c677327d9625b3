package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/repository"
)

// MaxProgressBatch bounds a single sync request.
const MaxProgressBatch = 1000

// ProgressService accepts progress snapshots pushed by clients.
type ProgressService interface {
	// Sync stores snapshots for owned decks and returns how many were written. It fails with
	// errs.ErrSyncDisabled when the account has progress sync switched off.
	Sync(ctx context.Context, userID uuid.UUID, snaps []model.ProgressSnapshot) (int, error)
}

type ProgressServiceImpl struct {
	users    repository.UserRepository
	decks    repository.DeckRepository
	progress repository.ProgressRepository
	now      func() time.Time
	log      *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(users repository.UserRepository, decks repository.DeckRepository,
	progress repository.ProgressRepository, log *zap.Logger) *ProgressServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressServiceImpl{users: users, decks: decks, progress: progress, now: time.Now, log: log}
}

// Sync drops snapshots for decks the user does not own and stamps missing sync times.
func (s *ProgressServiceImpl) Sync(ctx context.Context, userID uuid.UUID, snaps []model.ProgressSnapshot) (int, error) {
	if len(snaps) > MaxProgressBatch {
		return 0, fmt.Errorf("%w: at most %d progress entries per request", ErrInvalidArgument, MaxProgressBatch)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !u.ProgressSyncEnabled {
		return 0, errs.ErrSyncDisabled
	}

	keep := make([]model.ProgressSnapshot, 0, len(snaps))
	for i, sn := range snaps {
		deckID, err := uuid.FromString(sn.DeckID)
		if err != nil {
			return 0, fmt.Errorf("%w: progress[%d].deck_id %q", ErrInvalidArgument, i, sn.DeckID)
		}
		if _, err := s.decks.GetOwned(ctx, userID, deckID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				s.log.Debug("progress for unowned deck ignored", zap.Stringer("user", userID), zap.String("deck", sn.DeckID))
				continue
			}
			return 0, err
		}
		if sn.SyncedAt.IsZero() {
			sn.SyncedAt = s.now().UTC()
		}
		keep = append(keep, sn)
	}
	return s.progress.Upsert(ctx, userID, keep)
}
