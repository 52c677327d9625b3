// Package sqlite implements the local collection on a SQLite database with Anki-shaped tables:
// decks, cards and revlog. Sub-decks are decks named "Parent::Child".
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/and161185/decksync/internal/collection"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const childSep = "::"

// Store is a SQLite-backed collection.
type Store struct {
	db   *sql.DB
	dir  string
	log  *zap.Logger
	now  func() time.Time
	path string
}

var (
	_ collection.MaterialStore = (*Store)(nil)
	_ collection.ReviewLog     = (*Store)(nil)
	_ collection.Importer      = (*Store)(nil)
)

// Open opens or creates the collection at path and applies pending migrations.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create collection dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	s := &Store{db: db, dir: dir, log: log, now: time.Now, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate collection: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return err
	}
	res, err := p.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range res {
		s.log.Debug("collection migration applied", zap.String("source", r.Source.Path), zap.Duration("took", r.Duration))
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether a deck with id ref exists.
func (s *Store) Exists(ctx context.Context, ref int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM decks WHERE id = ?`, ref).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// deckScope returns the SQL predicate over cards.did selecting ref and, optionally, its children.
func (s *Store) deckScope(ctx context.Context, ref int64, includeChildren bool) (string, []any, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM decks WHERE id = ?`, ref).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("deck %d: %w", ref, errs.ErrMaterialMissing)
	}
	if err != nil {
		return "", nil, err
	}
	if !includeChildren {
		return `did = ?`, []any{ref}, nil
	}
	prefix := name + childSep
	return `did IN (SELECT id FROM decks WHERE id = ? OR substr(name, 1, ?) = ?)`,
		[]any{ref, len([]rune(prefix)), prefix}, nil
}

// CardIDs implements collection.MaterialStore.
func (s *Store) CardIDs(ctx context.Context, ref int64, includeChildren bool) ([]int64, error) {
	where, args, err := s.deckScope(ctx, ref, includeChildren)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM cards WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CardCounts implements collection.MaterialStore. Suspended cards are counted only as suspended.
func (s *Store) CardCounts(ctx context.Context, ref int64) (model.CardCounts, error) {
	where, args, err := s.deckScope(ctx, ref, true)
	if err != nil {
		return model.CardCounts{}, err
	}
	var c model.CardCounts
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN queue = -1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN queue <> -1 AND type = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN queue <> -1 AND type IN (1, 3) THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN queue <> -1 AND type = 2 THEN 1 ELSE 0 END), 0)
		FROM cards WHERE `+where, args...).
		Scan(&c.Total, &c.Suspended, &c.New, &c.Learning, &c.Review)
	return c, err
}

// Query implements collection.ReviewLog.
func (s *Store) Query(ctx context.Context, cardIDs []int64, sinceMs int64) (model.ReviewAggregate, error) {
	var agg model.ReviewAggregate
	if len(cardIDs) == 0 {
		return agg, nil
	}
	ids, err := json.Marshal(cardIDs)
	if err != nil {
		return agg, err
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN ease >= 2 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN type = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(ease), 0),
		       COALESCE(SUM(time), 0),
		       COALESCE(MAX(id), 0)
		FROM revlog
		WHERE cid IN (SELECT value FROM json_each(?)) AND id >= ?`, string(ids), sinceMs).
		Scan(&agg.Count, &agg.CorrectCount, &agg.NewCount, &agg.AvgEase, &agg.TotalDurationMs, &agg.LastEventMs)
	return agg, err
}

// bucketMs is the granularity used to fold review times before converting them to local dates.
// Every zone offset and DST transition falls on a quarter hour.
const bucketMs = 15 * 60 * 1000

// DistinctLocalDates implements collection.ReviewLog.
func (s *Store) DistinctLocalDates(ctx context.Context, cardIDs []int64, loc *time.Location) ([]string, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}
	ids, err := json.Marshal(cardIDs)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT id / ? FROM revlog
		WHERE cid IN (SELECT value FROM json_each(?))`, bucketMs, string(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	for rows.Next() {
		var b int64
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		seen[time.UnixMilli(b*bucketMs).In(loc).Format(time.DateOnly)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}
