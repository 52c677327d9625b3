package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Import stages a downloaded archive: it registers (or reuses) a deck named title and stores the
// archive next to the database. Unpacking notes and cards is left to the host application.
func (s *Store) Import(ctx context.Context, title string, archive []byte) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, errors.New("import: empty deck title")
	}
	if len(archive) == 0 {
		return 0, errors.New("import: empty archive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UnixMilli()
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, title).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO decks(name, created_at, updated_at) VALUES (?, ?, ?)`, title, now, now)
		if err != nil {
			return 0, fmt.Errorf("import: insert deck: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	}

	path, err := s.writeArchive(id, archive)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE decks SET archive_path = ?, updated_at = ? WHERE id = ?`, path, now, id); err != nil {
		return 0, fmt.Errorf("import: update deck: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.Info("archive staged", zap.String("deck", title), zap.Int64("ref", id), zap.Int("bytes", len(archive)))
	return id, nil
}

func (s *Store) writeArchive(id int64, archive []byte) (string, error) {
	dir := filepath.Join(s.dir, "archives")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, strconv.FormatInt(id, 10)+".apkg")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, archive, 0o600); err != nil {
		return "", fmt.Errorf("import: write archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("import: write archive: %w", err)
	}
	return path, nil
}

// DeleteDeck removes a deck and its cards. Sub-decks are left alone.
func (s *Store) DeleteDeck(ctx context.Context, ref int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, ref)
	return err
}
