package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

var ownedRowCols = []string{"id", "title", "description", "current_version", "card_count", "updated_at", "synced_version"}

func TestDeckRepo_AddVersion_Commit(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeckRepo(db)
	ctx := context.Background()
	v := model.DeckVersion{DeckID: uuid.Must(uuid.NewV4()), Version: "2.0", Notes: "more cards", CardCount: 120, FileKey: "d/2.0.apkg"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO deck_versions`).
		WithArgs(v.DeckID, "2.0", "more cards", 120, "d/2.0.apkg").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE decks SET current_version=\$2, card_count=\$3`).
		WithArgs(v.DeckID, "2.0", 120).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.AddVersion(ctx, v))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeckRepo_AddVersion_DuplicateRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeckRepo(db)
	ctx := context.Background()
	v := model.DeckVersion{DeckID: uuid.Must(uuid.NewV4()), Version: "1.0", FileKey: "k"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO deck_versions`).
		WithArgs(v.DeckID, "1.0", "", 0, "k").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	require.ErrorIs(t, r.AddVersion(ctx, v), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeckRepo_AddVersion_UnknownDeck(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeckRepo(db)
	v := model.DeckVersion{DeckID: uuid.Must(uuid.NewV4()), Version: "1.0", FileKey: "k"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO deck_versions`).
		WithArgs(v.DeckID, "1.0", "", 0, "k").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE decks`).
		WithArgs(v.DeckID, "1.0", 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	require.ErrorIs(t, r.AddVersion(context.Background(), v), errs.ErrNotFound)
}

func TestDeckRepo_CreateDeck_Grant(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeckRepo(db)
	ctx := context.Background()
	d := &model.Deck{ID: uuid.Must(uuid.NewV4()), Title: "Kanji"}
	uid := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`INSERT INTO decks`).
		WithArgs(d.ID, "Kanji", "", "", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.CreateDeck(ctx, d))

	mock.ExpectExec(`INSERT INTO decks`).
		WithArgs(d.ID, "Kanji", "", "", 0).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.CreateDeck(ctx, d), errs.ErrAlreadyExists)

	mock.ExpectExec(`INSERT INTO purchases .* ON CONFLICT DO NOTHING`).
		WithArgs(uid, d.ID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.NoError(t, r.Grant(ctx, uid, d.ID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeckRepo_ListOwned_and_GetOwned(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeckRepo(db)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`FROM purchases p JOIN decks d`).
		WithArgs(uid).
		WillReturnRows(pgxmock.NewRows(ownedRowCols).
			AddRow(a, "Alpha", "", "2.0", 10, now, "1.0").
			AddRow(b, "Beta", "", "1.0", 5, now, ""))
	list, err := r.ListOwned(ctx, uid)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "1.0", list[0].SyncedVersion)
	require.Equal(t, "Beta", list[1].Title)

	mock.ExpectQuery(`WHERE p.user_id=\$1 AND p.deck_id=\$2`).
		WithArgs(uid, a).
		WillReturnRows(pgxmock.NewRows(ownedRowCols).AddRow(a, "Alpha", "", "2.0", 10, now, "1.0"))
	d, err := r.GetOwned(ctx, uid, a)
	require.NoError(t, err)
	require.Equal(t, "2.0", d.CurrentVersion)

	mock.ExpectQuery(`WHERE p.user_id=\$1 AND p.deck_id=\$2`).
		WithArgs(uid, b).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetOwned(ctx, uid, b)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`FROM purchases p JOIN decks d`).
		WithArgs(uid).
		WillReturnError(errors.New("db down"))
	_, err = r.ListOwned(ctx, uid)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeckRepo_Versions(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeckRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	cols := []string{"deck_id", "version", "notes", "card_count", "file_key", "created_at"}
	now := time.Now()

	mock.ExpectQuery(`FROM deck_versions WHERE deck_id=\$1 AND version=\$2`).
		WithArgs(id, "1.0").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(id, "1.0", "", 3, "k1", now))
	v, err := r.GetVersion(ctx, id, "1.0")
	require.NoError(t, err)
	require.Equal(t, "k1", v.FileKey)

	mock.ExpectQuery(`FROM deck_versions WHERE deck_id=\$1 AND version=\$2`).
		WithArgs(id, "9").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetVersion(ctx, id, "9")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(id, "2.0", "n", 4, "k2", now).
			AddRow(id, "1.0", "", 3, "k1", now.Add(-time.Hour)))
	vs, err := r.ListVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	require.Equal(t, "2.0", vs[0].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeckRepo_Owners_MarkSynced(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeckRepo(db)
	ctx := context.Background()
	deck := uuid.Must(uuid.NewV4())
	u1, u2 := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT user_id FROM purchases WHERE deck_id=\$1`).
		WithArgs(deck).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(u1).AddRow(u2))
	owners, err := r.Owners(ctx, deck)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{u1, u2}, owners)

	mock.ExpectExec(`UPDATE purchases SET synced_version=\$3`).
		WithArgs(u1, deck, "2.0").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkSynced(ctx, u1, deck, "2.0"))

	mock.ExpectExec(`UPDATE purchases SET synced_version=\$3`).
		WithArgs(u2, deck, "2.0").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.MarkSynced(ctx, u2, deck, "2.0"), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
