package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/repository"
	"github.com/and161185/decksync/internal/service"
)

// seedFile is the YAML layout accepted by -seed.
type seedFile struct {
	Users []struct {
		Email        string `yaml:"email"`
		Password     string `yaml:"password"`
		DisplayName  string `yaml:"display_name"`
		ProgressSync *bool  `yaml:"progress_sync"`
	} `yaml:"users"`
	Decks []struct {
		ID          string `yaml:"id"`
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Versions    []struct {
			Version   string `yaml:"version"`
			Notes     string `yaml:"notes"`
			CardCount int    `yaml:"card_count"`
			File      string `yaml:"file"`
		} `yaml:"versions"`
		Owners []string `yaml:"owners"`
	} `yaml:"decks"`
}

type seeder struct {
	auth    service.AuthService
	users   repository.UserRepository
	decks   repository.DeckRepository
	catalog service.CatalogService
}

// deckNamespace derives stable ids for seeded decks declared without one.
var deckNamespace = uuid.NewV5(uuid.NamespaceURL, "https://decksync.invalid/decks")

// seed loads users, decks, versions and ownership. Entries that already exist are kept, so the same
// file can be applied on every start.
func seed(ctx context.Context, r io.Reader, s seeder, log *zap.Logger) error {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode seed: %w", err)
	}

	emails := map[string]uuid.UUID{}
	for _, u := range f.Users {
		_, err := s.auth.Register(ctx, u.Email, u.Password, u.DisplayName)
		if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		stored, err := s.users.GetByEmail(ctx, u.Email)
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		if u.ProgressSync != nil && *u.ProgressSync != stored.ProgressSyncEnabled {
			if err := s.users.SetProgressSync(ctx, stored.ID, *u.ProgressSync); err != nil {
				return fmt.Errorf("user %s: %w", u.Email, err)
			}
		}
		emails[u.Email] = stored.ID
	}

	for _, d := range f.Decks {
		deck := model.Deck{Title: d.Title, Description: d.Description}
		if d.ID != "" {
			id, err := uuid.FromString(d.ID)
			if err != nil {
				return fmt.Errorf("deck %q: %w", d.Title, err)
			}
			deck.ID = id
		} else {
			deck.ID = uuid.NewV5(deckNamespace, d.Title)
		}
		if err := s.decks.CreateDeck(ctx, &deck); err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
			return fmt.Errorf("deck %q: %w", d.Title, err)
		}
		for _, v := range d.Versions {
			_, err := s.catalog.Publish(ctx, deck, model.DeckVersion{
				Version: v.Version, Notes: v.Notes, CardCount: v.CardCount, FileKey: v.File,
			})
			if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
				return fmt.Errorf("deck %q version %s: %w", d.Title, v.Version, err)
			}
		}
		for _, email := range d.Owners {
			uid, ok := emails[email]
			if !ok {
				u, err := s.users.GetByEmail(ctx, email)
				if err != nil {
					return fmt.Errorf("deck %q owner %s: %w", d.Title, email, err)
				}
				uid = u.ID
			}
			if err := s.decks.Grant(ctx, uid, deck.ID); err != nil {
				return fmt.Errorf("deck %q owner %s: %w", d.Title, email, err)
			}
		}
		log.Info("deck seeded", zap.Stringer("id", deck.ID), zap.String("title", deck.Title),
			zap.Int("versions", len(d.Versions)), zap.Int("owners", len(d.Owners)))
	}
	log.Info("seed applied", zap.Int("users", len(f.Users)), zap.Int("decks", len(f.Decks)))
	return nil
}
