package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandsight/demand-planner/internal/domain/import/normalizer"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestSummarize(t *testing.T) {
	records := []normalizer.Record{
		{MaterialCode: "A-1", Date: "2024-02-01", Sales: 10},
		{MaterialCode: "A-1", Date: "2024-01-01", Sales: 5},
		{MaterialCode: "A-2", Date: "2024-01-01", Sales: 7},
	}

	skus, start, end, periods := Summarize(records)
	assert.Equal(t, 2, skus)
	assert.Equal(t, "2024-01-01", start)
	assert.Equal(t, "2024-02-01", end)
	assert.Equal(t, 2, periods)
}

func TestSaveDataset(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresImportRepository(mock)

	orgID := uuid.New()
	datasetID := uuid.New()
	records := []normalizer.Record{
		{MaterialCode: "A-1", Date: "2024-01-01", Sales: 100, Division: "North"},
		{MaterialCode: "A-1", Date: "2024-02-01", Sales: 150, Division: "North"},
	}
	dims := normalizer.DimensionSet{Divisions: []string{"North"}}

	mock.ExpectQuery("INSERT INTO import_datasets").
		WithArgs(orgID, "q1.csv", 1, "2024-01-01", "2024-02-01", 2, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(datasetID))
	mock.ExpectCopyFrom(
		pgx.Identifier{"import_records"},
		[]string{"dataset_id", "material_code", "description", "period", "sales", "division", "cluster", "lifecycle_phase", "dimensions"},
	).WillReturnResult(2)

	summary, err := repo.SaveDataset(context.Background(), orgID, "q1.csv", records, dims)
	require.NoError(t, err)

	assert.Equal(t, datasetID, summary.DatasetID)
	assert.Equal(t, 1, summary.SKUCount)
	assert.Equal(t, 2, summary.TotalPeriods)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDataset(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresImportRepository(mock)

	id := uuid.New()
	orgID := uuid.New()
	created := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM import_datasets").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "organization_id", "file_name", "sku_count", "date_start", "date_end", "total_periods", "created_at",
		}).AddRow(id, orgID, "q1.csv", 12, "2024-01-01", "2024-06-01", 6, created))

	d, err := repo.GetDataset(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "q1.csv", d.FileName)
	assert.Equal(t, 12, d.SKUCount)
	assert.Equal(t, 6, d.TotalPeriods)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDatasetsForDivisions(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresImportRepository(mock)
	orgID := uuid.New()

	t.Run("deletes matching datasets", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM import_datasets").
			WithArgs(orgID, []string{"North"}).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		err := repo.DeleteDatasetsForDivisions(context.Background(), orgID, []string{"North"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty division list is a no-op", func(t *testing.T) {
		err := repo.DeleteDatasetsForDivisions(context.Background(), orgID, nil)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteDatasetsForOrganization(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresImportRepository(mock)
	orgID := uuid.New()

	mock.ExpectExec("DELETE FROM import_datasets").
		WithArgs(orgID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	err := repo.DeleteDatasetsForOrganization(context.Background(), orgID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
