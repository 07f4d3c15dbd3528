package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/demandsight/demand-planner/internal/domain/import/normalizer"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresImportRepository implements ImportRepository using PostgreSQL.
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates a new PostgreSQL-backed import repository.
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

// SaveDataset stores the dataset header and bulk-copies the records.
func (r *PostgresImportRepository) SaveDataset(ctx context.Context, orgID uuid.UUID, fileName string, records []normalizer.Record, dims normalizer.DimensionSet) (*DatasetSummary, error) {
	skuCount, dateStart, dateEnd, totalPeriods := Summarize(records)

	dimsJSON, err := json.Marshal(dims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dimension set: %w", err)
	}

	query := `
		INSERT INTO import_datasets (organization_id, file_name, sku_count, date_start, date_end, total_periods, dimensions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var datasetID uuid.UUID
	err = r.db.QueryRow(ctx, query,
		orgID, fileName, skuCount, dateStart, dateEnd, totalPeriods, dimsJSON,
	).Scan(&datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		var dimJSON []byte
		if len(rec.Dimensions) > 0 {
			dimJSON, err = json.Marshal(rec.Dimensions)
			if err != nil {
				return nil, fmt.Errorf("failed to encode record dimensions: %w", err)
			}
		}
		rows = append(rows, []any{
			datasetID, rec.MaterialCode, rec.Description, rec.Date, rec.Sales,
			nullable(rec.Division), nullable(rec.Cluster), nullable(rec.Lifecycle), dimJSON,
		})
	}

	_, err = r.db.CopyFrom(ctx,
		pgx.Identifier{"import_records"},
		[]string{"dataset_id", "material_code", "description", "period", "sales", "division", "cluster", "lifecycle_phase", "dimensions"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to copy records: %w", err)
	}

	return &DatasetSummary{
		DatasetID:    datasetID,
		SKUCount:     skuCount,
		DateStart:    dateStart,
		DateEnd:      dateEnd,
		TotalPeriods: totalPeriods,
	}, nil
}

// GetDataset fetches a dataset header by id.
func (r *PostgresImportRepository) GetDataset(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	query := `
		SELECT id, organization_id, file_name, sku_count, date_start, date_end, total_periods, created_at
		FROM import_datasets
		WHERE id = $1
	`

	var d Dataset
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.OrganizationID, &d.FileName, &d.SKUCount,
		&d.DateStart, &d.DateEnd, &d.TotalPeriods, &d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &d, nil
}

// DeleteDatasetsForDivisions removes datasets whose dimension artifact covers
// any of the given divisions. Records cascade via the schema.
func (r *PostgresImportRepository) DeleteDatasetsForDivisions(ctx context.Context, orgID uuid.UUID, divisions []string) error {
	if len(divisions) == 0 {
		return nil
	}
	query := `
		DELETE FROM import_datasets
		WHERE organization_id = $1
		  AND dimensions->'divisions' ?| $2
	`
	if _, err := r.db.Exec(ctx, query, orgID, divisions); err != nil {
		return fmt.Errorf("failed to delete division datasets: %w", err)
	}
	return nil
}

// DeleteDatasetsForOrganization removes every dataset the organization holds.
// Records cascade via the schema.
func (r *PostgresImportRepository) DeleteDatasetsForOrganization(ctx context.Context, orgID uuid.UUID) error {
	query := `DELETE FROM import_datasets WHERE organization_id = $1`
	if _, err := r.db.Exec(ctx, query, orgID); err != nil {
		return fmt.Errorf("failed to delete organization datasets: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
