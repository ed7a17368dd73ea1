package locks

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery(`^SELECT account_id, device_id, expires_at FROM locks WHERE account_id = \$1$`).
		WithArgs("acc").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "device_id", "expires_at"}).AddRow("acc", "dev", exp))

	l, err := repo.Get(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, &models.Lock{AccountID: "acc", DeviceID: "dev", ExpiresAt: exp}, l)

	mock.ExpectQuery(`FROM locks`).WithArgs("none").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "none")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutAndDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec(`(?s)INSERT INTO locks .*ON CONFLICT \(account_id\)`).
		WithArgs("acc", "dev", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE FROM locks WHERE account_id = \$1$`).
		WithArgs("acc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Put(context.Background(), &models.Lock{AccountID: "acc", DeviceID: "dev", ExpiresAt: exp}))
	require.NoError(t, repo.Delete(context.Background(), "acc"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPut_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT INTO locks`).WillReturnError(errors.New("db down"))

	err := repo.Put(context.Background(), &models.Lock{AccountID: "acc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestListExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery(`expires_at <= \$1 ORDER BY account_id$`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "device_id", "expires_at"}).
			AddRow("a1", "d1", now.Add(-time.Minute)).
			AddRow("a2", "d2", now))

	got, err := repo.ListExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[1].AccountID)
}
