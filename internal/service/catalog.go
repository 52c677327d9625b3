package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/repository"
)

// MaxBatchDownload is the largest batch accepted by BatchDownload.
const MaxBatchDownload = 10

// CatalogService serves deck ownership, versions and pre-signed downloads.
type CatalogService interface {
	// Owned returns the user's decks.
	Owned(ctx context.Context, userID uuid.UUID) ([]model.OwnedDeck, error)
	// CheckUpdates returns the user's decks and how many have a newer version than last granted.
	CheckUpdates(ctx context.Context, userID uuid.UUID) ([]model.OwnedDeck, int, error)
	// Download grants one deck. An empty version means the current one.
	Download(ctx context.Context, userID uuid.UUID, deckID, version string) (model.DownloadGrant, error)
	// BatchDownload grants up to MaxBatchDownload decks, reporting refusals per deck.
	BatchDownload(ctx context.Context, userID uuid.UUID, deckIDs []string) ([]model.DownloadGrant, []model.DownloadFailure, error)
	// Changelog returns the version history of an owned deck.
	Changelog(ctx context.Context, userID uuid.UUID, deckID string) (model.Changelog, error)
	// Publish releases a new version and notifies the deck's owners.
	Publish(ctx context.Context, deck model.Deck, v model.DeckVersion) (int, error)
	// ResolveFile validates a download token and returns the file key it grants.
	ResolveFile(token string) (string, error)
}

type downloadClaims struct {
	jwt.RegisteredClaims
	FileKey string `json:"fk"`
}

type CatalogServiceImpl struct {
	decks       repository.DeckRepository
	notes       repository.NotificationRepository
	signKey     []byte
	baseURL     string
	downloadTTL time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// NewCatalogService constructs CatalogService. baseURL is the public server address used to build
// download links.
func NewCatalogService(decks repository.DeckRepository, notes repository.NotificationRepository,
	signKey []byte, baseURL string, downloadTTL time.Duration, log *zap.Logger) *CatalogServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogServiceImpl{
		decks: decks, notes: notes, signKey: signKey,
		baseURL: strings.TrimRight(baseURL, "/"), downloadTTL: downloadTTL,
		now: time.Now, log: log,
	}
}

func (s *CatalogServiceImpl) Owned(ctx context.Context, userID uuid.UUID) ([]model.OwnedDeck, error) {
	return s.decks.ListOwned(ctx, userID)
}

func (s *CatalogServiceImpl) CheckUpdates(ctx context.Context, userID uuid.UUID) ([]model.OwnedDeck, int, error) {
	owned, err := s.decks.ListOwned(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	var n int
	for _, d := range owned {
		if d.SyncedVersion != "" && d.SyncedVersion != d.CurrentVersion {
			n++
		}
	}
	return owned, n, nil
}

func parseDeckID(raw string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: deck_id %q", ErrInvalidArgument, raw)
	}
	return id, nil
}

// Download grants one deck and records the granted version as synced.
func (s *CatalogServiceImpl) Download(ctx context.Context, userID uuid.UUID, deckID, version string) (model.DownloadGrant, error) {
	id, err := parseDeckID(deckID)
	if err != nil {
		return model.DownloadGrant{}, err
	}
	return s.grant(ctx, userID, id, version)
}

func (s *CatalogServiceImpl) grant(ctx context.Context, userID, deckID uuid.UUID, version string) (model.DownloadGrant, error) {
	d, err := s.decks.GetOwned(ctx, userID, deckID)
	if err != nil {
		return model.DownloadGrant{}, err
	}
	if version == "" {
		version = d.CurrentVersion
	}
	if version == "" {
		return model.DownloadGrant{}, fmt.Errorf("deck %s has no released version: %w", deckID, errs.ErrNotFound)
	}
	v, err := s.decks.GetVersion(ctx, deckID, version)
	if err != nil {
		return model.DownloadGrant{}, err
	}
	url, exp, err := s.signDownload(userID, v)
	if err != nil {
		return model.DownloadGrant{}, err
	}
	if err := s.decks.MarkSynced(ctx, userID, deckID, v.Version); err != nil {
		return model.DownloadGrant{}, err
	}
	return model.DownloadGrant{
		DeckID:      deckID.String(),
		Title:       d.Title,
		Version:     v.Version,
		DownloadURL: url,
		ExpiresAt:   exp.Unix(),
	}, nil
}

// BatchDownload grants each deck independently. Only storage failures abort the whole batch.
func (s *CatalogServiceImpl) BatchDownload(ctx context.Context, userID uuid.UUID, deckIDs []string) ([]model.DownloadGrant, []model.DownloadFailure, error) {
	if len(deckIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: deck_ids is empty", ErrInvalidArgument)
	}
	if len(deckIDs) > MaxBatchDownload {
		return nil, nil, fmt.Errorf("%w: at most %d decks per batch", ErrInvalidArgument, MaxBatchDownload)
	}
	var (
		grants []model.DownloadGrant
		failed []model.DownloadFailure
	)
	for _, raw := range deckIDs {
		id, err := parseDeckID(raw)
		if err != nil {
			failed = append(failed, model.DownloadFailure{DeckID: raw, Error: "Invalid deck id"})
			continue
		}
		g, err := s.grant(ctx, userID, id, "")
		switch {
		case err == nil:
			grants = append(grants, g)
		case errors.Is(err, errs.ErrNotFound):
			failed = append(failed, model.DownloadFailure{DeckID: raw, Error: "Deck not found or not owned"})
		default:
			return nil, nil, err
		}
	}
	return grants, failed, nil
}

// Changelog lists the deck's versions newest first, flagging the current and synced ones.
func (s *CatalogServiceImpl) Changelog(ctx context.Context, userID uuid.UUID, deckID string) (model.Changelog, error) {
	id, err := parseDeckID(deckID)
	if err != nil {
		return model.Changelog{}, err
	}
	d, err := s.decks.GetOwned(ctx, userID, id)
	if err != nil {
		return model.Changelog{}, err
	}
	vs, err := s.decks.ListVersions(ctx, id)
	if err != nil {
		return model.Changelog{}, err
	}
	cl := model.Changelog{
		DeckID:            id.String(),
		Title:             d.Title,
		CurrentVersion:    d.CurrentVersion,
		UserSyncedVersion: d.SyncedVersion,
		IsUpToDate:        d.SyncedVersion != "" && d.SyncedVersion == d.CurrentVersion,
		Versions:          make([]model.ChangelogVersion, 0, len(vs)),
	}
	for _, v := range vs {
		cl.Versions = append(cl.Versions, model.ChangelogVersion{
			Version:   v.Version,
			Notes:     v.Notes,
			CardCount: v.CardCount,
			IsCurrent: v.Version == d.CurrentVersion,
			IsSynced:  v.Version == d.SyncedVersion,
			CreatedAt: v.CreatedAt,
		})
	}
	return cl, nil
}

// Publish adds v to the deck and sends a deck_update notification to every owner. Notification
// failures are logged and do not undo the release.
func (s *CatalogServiceImpl) Publish(ctx context.Context, deck model.Deck, v model.DeckVersion) (int, error) {
	if v.Version == "" || !fs.ValidPath(v.FileKey) {
		return 0, fmt.Errorf("%w: version and a relative file key are required", ErrInvalidArgument)
	}
	v.DeckID = deck.ID
	if err := s.decks.AddVersion(ctx, v); err != nil {
		return 0, err
	}
	owners, err := s.decks.Owners(ctx, deck.ID)
	if err != nil {
		return 0, err
	}
	var notified int
	for _, uid := range owners {
		n := model.Notification{
			Type:    "deck_update",
			Title:   deck.Title + " updated",
			Message: "Version " + v.Version + " is available",
			Metadata: map[string]any{
				"deck_id": deck.ID.String(),
				"version": v.Version,
			},
		}
		if err := s.notes.Create(ctx, uid, n); err != nil {
			s.log.Warn("deck update notification failed", zap.Stringer("user", uid), zap.Error(err))
			continue
		}
		notified++
	}
	s.log.Info("deck version published", zap.Stringer("deck", deck.ID), zap.String("version", v.Version),
		zap.Int("notified", notified))
	return notified, nil
}

func (s *CatalogServiceImpl) signDownload(userID uuid.UUID, v model.DeckVersion) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.downloadTTL)
	claims := downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{"download"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		FileKey: v.FileKey,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.baseURL + "/files/" + signed, exp, nil
}

// ResolveFile verifies a download token issued by this service.
func (s *CatalogServiceImpl) ResolveFile(token string) (string, error) {
	var claims downloadClaims
	if err := parseHS256(token, s.signKey, &claims, s.now); err != nil {
		return "", err
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "download" || !fs.ValidPath(claims.FileKey) {
		return "", fmt.Errorf("%w: not a download token", errs.ErrUnauthorized)
	}
	return claims.FileKey, nil
}
