package ingestion

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/healthreport/pkg/common/database"
)

func setupRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := database.FromConn(conn)
	require.NoError(t, err)
	return NewRepository(db), mock
}

func TestRepositoryCreate(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "dataset_loads"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	run := &LoadRun{ID: "load-1", Source: "ehr", Format: FormatCSV, Status: StatusAccepted}
	require.NoError(t, repo.Create(context.Background(), run))
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFail(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "dataset_loads" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Fail(context.Background(), "load-1", "bad row"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGet(t *testing.T) {
	repo, mock := setupRepository(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "source", "format", "status", "version", "record_count", "rejected", "error", "created_at", "updated_at"}).
		AddRow("load-1", "ehr", "csv", StatusPublished, "v1", 42, 1, "", created, created)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "dataset_loads" WHERE id = $1`)).
		WillReturnRows(rows)

	run, err := repo.Get(context.Background(), "load-1")
	require.NoError(t, err)
	assert.Equal(t, 42, run.RecordCount)
	assert.Equal(t, "v1", run.Version)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "dataset_loads" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCleanupSkipsWithoutTTL(t *testing.T) {
	repo, mock := setupRepository(t)
	require.NoError(t, repo.CleanupExpired(context.Background(), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}
