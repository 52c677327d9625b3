// Package registry keeps the persisted map of downloaded remote decks to local material.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// Material resolves local material references.
type Material interface {
	Exists(ctx context.Context, ref int64) (bool, error)
}

// entry is the persisted shape of one tracked deck. Older state files used anki_deck_id for the
// reference and may hold it as a string.
type entry struct {
	Version      string          `json:"version"`
	LocalRef     json.RawMessage `json:"local_material_ref,omitempty"`
	LegacyRef    json.RawMessage `json:"anki_deck_id,omitempty"`
	DownloadedAt string          `json:"downloaded_at"`
}

// Registry is the DeckRegistry. All mutations are serialized.
type Registry struct {
	store    config.Store
	material Material
	log      *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// New returns a registry persisting into store. log may be nil.
func New(store config.Store, material Material, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, material: material, log: log, now: time.Now}
}

// Track records that deckID at version was imported as ref. It fails if ref does not resolve.
// Tracking an already tracked deck overwrites it.
func (r *Registry) Track(ctx context.Context, deckID, version string, ref int64) (model.TrackedDeck, error) {
	if deckID == "" {
		return model.TrackedDeck{}, errors.New("registry: empty deck id")
	}
	if ref <= 0 || !r.VerifyExists(ctx, ref) {
		return model.TrackedDeck{}, fmt.Errorf("registry: track %s: ref %d: %w", deckID, ref, errs.ErrMaterialMissing)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.load()
	if err != nil {
		return model.TrackedDeck{}, err
	}
	td := model.TrackedDeck{DeckID: deckID, Version: version, LocalRef: ref, DownloadedAt: r.now().UTC()}
	m[deckID] = toEntry(td)
	if err := r.save(m); err != nil {
		return model.TrackedDeck{}, err
	}
	r.log.Info("deck tracked", zap.String("deck_id", deckID), zap.String("version", version), zap.Int64("ref", ref))
	return td, nil
}

// Get returns the tracked deck, or false.
func (r *Registry) Get(deckID string) (model.TrackedDeck, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.load()
	if err != nil {
		return model.TrackedDeck{}, false, err
	}
	e, ok := m[deckID]
	if !ok {
		return model.TrackedDeck{}, false, nil
	}
	return fromEntry(deckID, e), true, nil
}

// List returns every tracked deck ordered by deck id.
func (r *Registry) List() ([]model.TrackedDeck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.TrackedDeck, 0, len(m))
	for id, e := range m {
		out = append(out, fromEntry(id, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeckID < out[j].DeckID })
	return out, nil
}

// Remove forgets deckID. Removing an untracked deck is a no-op.
func (r *Registry) Remove(deckID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(deckID)
}

func (r *Registry) remove(deckID string) error {
	m, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := m[deckID]; !ok {
		return nil
	}
	delete(m, deckID)
	return r.save(m)
}

// Cleanup drops every tracked deck whose reference no longer resolves, including references that
// are not valid integers. It returns how many entries were removed and how many existed before.
// An entry whose removal fails stays tracked.
func (r *Registry) Cleanup(ctx context.Context) (removed, total int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.load()
	if err != nil {
		return 0, 0, err
	}
	total = len(m)

	var stale []string
	for id, e := range m {
		td := fromEntry(id, e)
		if td.LocalRef <= 0 {
			r.log.Info("tracked deck has no valid local ref", zap.String("deck_id", id))
			stale = append(stale, id)
			continue
		}
		if !r.VerifyExists(ctx, td.LocalRef) {
			r.log.Info("tracked deck material is gone", zap.String("deck_id", id), zap.Int64("ref", td.LocalRef))
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	for _, id := range stale {
		if err := r.remove(id); err != nil {
			r.log.Warn("cleanup: remove failed, keeping entry", zap.String("deck_id", id), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		r.log.Info("registry cleanup", zap.Int("removed", removed), zap.Int("total", total))
	}
	return removed, total, nil
}

// VerifyExists reports whether ref resolves. Lookup errors count as missing.
func (r *Registry) VerifyExists(ctx context.Context, ref int64) bool {
	if ref <= 0 {
		return false
	}
	ok, err := r.material.Exists(ctx, ref)
	if err != nil {
		r.log.Warn("verify material", zap.Int64("ref", ref), zap.Error(err))
		return false
	}
	return ok
}

func (r *Registry) load() (map[string]entry, error) {
	m := map[string]entry{}
	if _, err := r.store.Get(config.KeyDownloadedDecks, &m); err != nil {
		return nil, fmt.Errorf("registry: read: %w", err)
	}
	if m == nil {
		m = map[string]entry{}
	}
	return m, nil
}

func (r *Registry) save(m map[string]entry) error {
	if err := r.store.Set(config.KeyDownloadedDecks, m); err != nil {
		return fmt.Errorf("registry: write: %w", err)
	}
	return nil
}

func toEntry(td model.TrackedDeck) entry {
	return entry{
		Version:      td.Version,
		LocalRef:     json.RawMessage(strconv.FormatInt(td.LocalRef, 10)),
		DownloadedAt: td.DownloadedAt.Format(time.RFC3339Nano),
	}
}

func fromEntry(id string, e entry) model.TrackedDeck {
	ref := CoerceRef(e.LocalRef)
	if ref == 0 {
		ref = CoerceRef(e.LegacyRef)
	}
	return model.TrackedDeck{
		DeckID:       id,
		Version:      e.Version,
		LocalRef:     ref,
		DownloadedAt: parseTime(e.DownloadedAt),
	}
}

// CoerceRef turns a stored reference into an integer. JSON integers and numeric strings coerce;
// anything else yields 0, meaning missing.
func CoerceRef(raw json.RawMessage) int64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0
	}
	if s[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return int64(f)
	}
	return 0
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}

// parseTime reads zone-less timestamps from older state files as local time.
func parseTime(s string) time.Time {
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
