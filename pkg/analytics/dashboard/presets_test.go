package dashboard

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
	"github.com/synaptica-ai/healthreport/pkg/common/models"
)

func setupPresets(t *testing.T) (*PresetRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := database.FromConn(conn)
	require.NoError(t, err)
	return NewPresetRepository(db), mock
}

var presetColumns = []string{"id", "name", "description", "criteria", "created_at"}

func TestPresetRepositoryCreate(t *testing.T) {
	repo, mock := setupPresets(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "filter_presets"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	preset := &models.FilterPreset{
		Name:     "winter cancer",
		Criteria: models.Criteria{Conditions: []string{"Cancer"}},
	}
	require.NoError(t, repo.Create(context.Background(), preset))
	assert.Len(t, preset.ID, 36)
	assert.False(t, preset.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPresetRepositoryGet(t *testing.T) {
	repo, mock := setupPresets(t)
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "filter_presets" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(presetColumns).
			AddRow("p-1", "q1", "first quarter", []byte(`{"date_lower":"2024-01-01","date_upper":"2024-03-31","genders":["Female"]}`), created))

	preset, err := repo.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "q1", preset.Name)
	assert.Equal(t, []string{"Female"}, preset.Criteria.Genders)
	assert.Nil(t, preset.Criteria.Hospitals)
	assert.Equal(t, time.March, preset.Criteria.DateUpper.Month())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "filter_presets" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(presetColumns))
	_, err = repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrPresetNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPresetRepositoryList(t *testing.T) {
	repo, mock := setupPresets(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "filter_presets" ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows(presetColumns).
			AddRow("p-2", "b", "", []byte(`{"hospitals":["Kim Inc"]}`), now).
			AddRow("p-1", "a", "", []byte(`{}`), now.Add(-time.Hour)))

	presets, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, "p-2", presets[0].ID)
	assert.Equal(t, []string{"Kim Inc"}, presets[0].Criteria.Hospitals)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "filter_presets"`)).
		WillReturnRows(sqlmock.NewRows(presetColumns).AddRow("p-3", "c", "", []byte(`{"date_lower":"soon"}`), now))
	_, err = repo.List(context.Background())
	assert.True(t, errors.Is(err, models.ErrInvalidDate))
	assert.NoError(t, mock.ExpectationsWereMet())
}
