// Package syncer orchestrates the engine's cycles: progress push, update checks, downloads and
// notification polling.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// Registry is the part of the deck registry the cycles use.
type Registry interface {
	Cleanup(ctx context.Context) (removed, total int, err error)
	List() ([]model.TrackedDeck, error)
	Track(ctx context.Context, deckID, version string, ref int64) (model.TrackedDeck, error)
}

// Snapshotter builds the progress snapshot of one tracked deck.
type Snapshotter interface {
	Snapshot(ctx context.Context, deck model.TrackedDeck) (model.ProgressSnapshot, error)
}

// ProgressAPI pushes snapshots to the remote authority.
type ProgressAPI interface {
	SyncProgress(ctx context.Context, snaps []model.ProgressSnapshot) (int, error)
}

// Status is the outcome of a successful cycle.
type Status int

const (
	StatusSynced Status = iota
	StatusNothingToSync
	StatusDisabled // server has progress sync switched off; not an error
)

func (s Status) String() string {
	switch s {
	case StatusNothingToSync:
		return "nothing_to_sync"
	case StatusDisabled:
		return "disabled"
	default:
		return "synced"
	}
}

// Result describes one sync cycle.
type Result struct {
	CycleID       string
	Status        Status
	SyncedCount   int
	Attempted     int     // snapshots sent
	Skipped       []error // *errs.Error of KindPartialSync, one per skipped deck
	Cleaned       int     // registry entries dropped by cleanup
	TrackedBefore int     // registry size before cleanup
}

// Coordinator runs progress sync cycles. Cycles on one Coordinator never overlap.
type Coordinator struct {
	reg   Registry
	snaps Snapshotter
	api   ProgressAPI
	log   *zap.Logger

	mu sync.Mutex
}

// NewCoordinator wires a coordinator. log may be nil.
func NewCoordinator(reg Registry, snaps Snapshotter, api ProgressAPI, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{reg: reg, snaps: snaps, api: api, log: log}
}

// Sync runs one cycle: registry cleanup, per-deck snapshots, then one push. A deck whose snapshot
// fails is skipped. AuthError and ServerError from the push are returned unchanged, except the
// "sync not enabled" response which yields StatusDisabled.
func (c *Coordinator) Sync(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{CycleID: ulid.Make().String()}
	log := c.log.With(zap.String("cycle", res.CycleID))

	cleaned, total, err := c.reg.Cleanup(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: cleanup: %w", err)
	}
	res.Cleaned, res.TrackedBefore = cleaned, total

	decks, err := c.reg.List()
	if err != nil {
		return res, fmt.Errorf("sync: list tracked decks: %w", err)
	}

	snaps := make([]model.ProgressSnapshot, 0, len(decks))
	for _, d := range decks {
		s, err := c.snaps.Snapshot(ctx, d)
		if err != nil {
			perr := errs.PartialSync(d.DeckID, err)
			res.Skipped = append(res.Skipped, perr)
			log.Warn("deck skipped", zap.String("deck_id", d.DeckID), zap.Error(err))
			continue
		}
		snaps = append(snaps, s)
	}

	if len(snaps) == 0 {
		res.Status = StatusNothingToSync
		log.Info("nothing to sync", zap.Int("tracked", len(decks)), zap.Int("skipped", len(res.Skipped)))
		return res, nil
	}

	res.Attempted = len(snaps)
	n, err := c.api.SyncProgress(ctx, snaps)
	if err != nil {
		if IsSyncDisabled(err) {
			res.Status = StatusDisabled
			log.Info("progress sync not enabled for this account")
			return res, nil
		}
		return res, err
	}
	res.Status = StatusSynced
	res.SyncedCount = n
	log.Info("progress synced",
		zap.Int("sent", len(snaps)),
		zap.Int("synced", n),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("cleaned", cleaned))
	return res, nil
}

// IsSyncDisabled reports whether err is the server saying progress sync is switched off for the
// account. The backend vocabulary is matched by substring, case-insensitively.
func IsSyncDisabled(err error) bool {
	if errs.KindOf(err) != errs.KindServer {
		return false
	}
	msg := strings.ToLower(errs.Message(err))
	return strings.Contains(msg, "not enabled") || strings.Contains(msg, "disabled")
}
