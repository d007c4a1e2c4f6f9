package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
	"github.com/stretchr/testify/require"
)

func TestStore_LastSend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)
	key := storage.EntityKey{Kind: definition.KindReport, Name: "Energy"}

	mock.ExpectQuery(regexp.QuoteMeta(querySelectLastSend)).
		WithArgs("report", "Energy").
		WillReturnRows(sqlmock.NewRows([]string{"last_send"}).AddRow("2023-11-15"))

	got, err := store.LastSend(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LastSendNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(querySelectLastSend)).
		WithArgs("user", "alice").
		WillReturnError(sql.ErrNoRows)

	_, err = New(db).LastSend(context.Background(), storage.EntityKey{Kind: definition.KindUser, Name: "alice"})
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LastSendQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(querySelectLastSend)).
		WithArgs("user", "alice").
		WillReturnError(errors.New("connection reset"))

	_, err = New(db).LastSend(context.Background(), storage.EntityKey{Kind: definition.KindUser, Name: "alice"})
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_SetLastSendUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryUpsertLastSend)).
		WithArgs("report", "Energy", "2024-02-01", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = New(db).SetLastSend(context.Background(),
		storage.EntityKey{Kind: definition.KindReport, Name: "Energy"},
		time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ValidateSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryValidateSchema)).
		WillReturnError(errors.New(`relation "schedule_records" does not exist`))

	err = New(db).ValidateSchema(context.Background())
	require.ErrorContains(t, err, "did you run migrations")
}

func TestDriverName(t *testing.T) {
	name, err := DriverName(DialectSQLite)
	require.NoError(t, err)
	require.Equal(t, "sqlite3", name)

	name, err = DriverName(DialectPostgres)
	require.NoError(t, err)
	require.Equal(t, "postgres", name)

	_, err = DriverName("mysql")
	require.Error(t, err)
}
