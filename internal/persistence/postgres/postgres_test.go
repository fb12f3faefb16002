package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/microstructure"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestHistory_Load(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHistory(db, time.Second)

	rows := sqlmock.NewRows([]string{"day", "features"}).
		AddRow(day, []byte(`{"iv_rank":41}`)).
		AddRow(day.AddDate(0, 0, 1), []byte(`{"iv_rank":43}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM microstructure_history")).
		WithArgs("AAPL").
		WillReturnRows(rows)

	entries, err := repo.Load(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 41.0, entries[0].Features["iv_rank"])
	assert.True(t, entries[1].Date.Equal(day.AddDate(0, 0, 1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_LoadBadJSON(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT day, features").
		WithArgs("AAPL").
		WillReturnRows(sqlmock.NewRows([]string{"day", "features"}).AddRow(day, []byte(`nope`)))

	_, err := NewHistory(db, time.Second).Load(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "decode features")
}

func TestHistory_Append(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHistory(db, time.Second)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (ticker, day) DO NOTHING")).
		WithArgs("AAPL", day, []byte(`{"iv_rank":50}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), "AAPL", microstructure.Entry{
		Date: day, Features: map[string]float64{"iv_rank": 50},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_AppendError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO microstructure_history").WillReturnError(errors.New("connection reset"))

	err := NewHistory(db, time.Second).Append(context.Background(), "AAPL", microstructure.Entry{Date: day})
	assert.ErrorContains(t, err, "connection reset")
}

func TestLedger_LastSeen(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ticker = ANY($1)")).
		WithArgs(pq.Array([]string{"AAPL", "MSFT"})).
		WillReturnRows(sqlmock.NewRows([]string{"ticker", "last_seen"}).AddRow("AAPL", day))

	seen, err := NewLedger(db, time.Second).LastSeen(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
	assert.True(t, seen["AAPL"].Equal(day))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Record(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO signal_ledger")
	prep.ExpectExec().WithArgs("AAPL", day).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("MSFT", day).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewLedger(db, time.Second).Record(context.Background(), []string{"AAPL", "MSFT"}, day))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS microstructure_history").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
