// Package memory contains in-process implementations of the repository interfaces. They back the
// server's -memory mode and end-to-end tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// Users is an in-memory UserRepository.
type Users struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.User
	byEmail map[string]uuid.UUID
}

// NewUsers returns an empty user store.
func NewUsers() *Users {
	return &Users{byID: map[uuid.UUID]model.User{}, byEmail: map[string]uuid.UUID{}}
}

func (s *Users) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return errs.ErrAlreadyExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.byID[u.ID] = *u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *Users) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *Users) SetProgressSync(_ context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.ProgressSyncEnabled = enabled
	s.byID[id] = u
	return nil
}

// Tokens is an in-memory TokenRepository keyed by digest.
type Tokens struct {
	mu     sync.Mutex
	byHash map[string]model.RefreshToken
}

// NewTokens returns an empty token store.
func NewTokens() *Tokens { return &Tokens{byHash: map[string]model.RefreshToken{}} }

func (s *Tokens) SaveRefresh(_ context.Context, rt model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[string(rt.Hash)] = rt
	return nil
}

func (s *Tokens) ConsumeRefresh(_ context.Context, hash []byte, now time.Time) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.byHash[string(hash)]
	if !ok {
		return model.RefreshToken{}, errs.ErrUnauthorized
	}
	delete(s.byHash, string(hash))
	if !rt.ExpiresAt.After(now) {
		return model.RefreshToken{}, errs.ErrUnauthorized
	}
	return rt, nil
}

func (s *Tokens) DeleteForUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, rt := range s.byHash {
		if rt.UserID == userID {
			delete(s.byHash, k)
		}
	}
	return nil
}

type ownership struct{ user, deck uuid.UUID }

// Decks is an in-memory DeckRepository.
type Decks struct {
	mu        sync.RWMutex
	decks     map[uuid.UUID]model.Deck
	versions  map[uuid.UUID][]model.DeckVersion
	purchases map[ownership]string
}

// NewDecks returns an empty catalog.
func NewDecks() *Decks {
	return &Decks{
		decks:     map[uuid.UUID]model.Deck{},
		versions:  map[uuid.UUID][]model.DeckVersion{},
		purchases: map[ownership]string{},
	}
}

func (s *Decks) CreateDeck(_ context.Context, d *model.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decks[d.ID]; ok {
		return errs.ErrAlreadyExists
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	s.decks[d.ID] = *d
	return nil
}

func (s *Decks) AddVersion(_ context.Context, v model.DeckVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decks[v.DeckID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, have := range s.versions[v.DeckID] {
		if have.Version == v.Version {
			return errs.ErrAlreadyExists
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	s.versions[v.DeckID] = append(s.versions[v.DeckID], v)
	d.CurrentVersion, d.CardCount, d.UpdatedAt = v.Version, v.CardCount, v.CreatedAt
	s.decks[v.DeckID] = d
	return nil
}

func (s *Decks) Grant(_ context.Context, userID, deckID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decks[deckID]; !ok {
		return errs.ErrNotFound
	}
	k := ownership{userID, deckID}
	if _, ok := s.purchases[k]; !ok {
		s.purchases[k] = ""
	}
	return nil
}

func (s *Decks) ListOwned(_ context.Context, userID uuid.UUID) ([]model.OwnedDeck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.OwnedDeck
	for k, synced := range s.purchases {
		if k.user == userID {
			out = append(out, model.OwnedDeck{Deck: s.decks[k.deck], SyncedVersion: synced})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Decks) GetOwned(_ context.Context, userID, deckID uuid.UUID) (model.OwnedDeck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	synced, ok := s.purchases[ownership{userID, deckID}]
	if !ok {
		return model.OwnedDeck{}, errs.ErrNotFound
	}
	return model.OwnedDeck{Deck: s.decks[deckID], SyncedVersion: synced}, nil
}

func (s *Decks) GetVersion(_ context.Context, deckID uuid.UUID, version string) (model.DeckVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions[deckID] {
		if v.Version == version {
			return v, nil
		}
	}
	return model.DeckVersion{}, errs.ErrNotFound
}

func (s *Decks) ListVersions(_ context.Context, deckID uuid.UUID) ([]model.DeckVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[deckID]
	out := make([]model.DeckVersion, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		out = append(out, vs[i])
	}
	return out, nil
}

func (s *Decks) Owners(_ context.Context, deckID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for k := range s.purchases {
		if k.deck == deckID {
			out = append(out, k.user)
		}
	}
	return out, nil
}

func (s *Decks) MarkSynced(_ context.Context, userID, deckID uuid.UUID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ownership{userID, deckID}
	if _, ok := s.purchases[k]; !ok {
		return errs.ErrNotFound
	}
	s.purchases[k] = version
	return nil
}

// Progress is an in-memory ProgressRepository.
type Progress struct {
	mu    sync.RWMutex
	snaps map[ownership]model.ProgressSnapshot
}

// NewProgress returns an empty progress store.
func NewProgress() *Progress { return &Progress{snaps: map[ownership]model.ProgressSnapshot{}} }

func (s *Progress) Upsert(_ context.Context, userID uuid.UUID, snaps []model.ProgressSnapshot) (int, error) {
	keys := make([]ownership, len(snaps))
	for i, sn := range snaps {
		id, err := uuid.FromString(sn.DeckID)
		if err != nil {
			return 0, err
		}
		keys[i] = ownership{userID, id}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range keys {
		s.snaps[k] = snaps[i]
	}
	return len(snaps), nil
}

func (s *Progress) Get(_ context.Context, userID, deckID uuid.UUID) (model.ProgressSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.snaps[ownership{userID, deckID}]
	if !ok {
		return model.ProgressSnapshot{}, errs.ErrNotFound
	}
	return sn, nil
}

type storedNotification struct {
	user uuid.UUID
	model.Notification
}

// Notifications is an in-memory NotificationRepository.
type Notifications struct {
	mu    sync.RWMutex
	items []storedNotification // insertion order
}

// NewNotifications returns an empty notification store.
func NewNotifications() *Notifications { return &Notifications{} }

func (s *Notifications) Create(_ context.Context, userID uuid.UUID, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.Must(uuid.NewV4()).String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, storedNotification{user: userID, Notification: n})
	return nil
}

func (s *Notifications) List(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		out           []model.Notification
		unread, total int
	)
	for i := len(s.items) - 1; i >= 0; i-- {
		it := s.items[i]
		if it.user != userID {
			continue
		}
		total++
		if !it.Read {
			unread++
		}
		if len(out) < limit {
			out = append(out, it.Notification)
		}
	}
	return out, unread, total, nil
}

func (s *Notifications) MarkRead(_ context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id.String()] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if _, ok := want[s.items[i].ID]; ok && s.items[i].user == userID {
			s.items[i].Read = true
		}
	}
	return nil
}
