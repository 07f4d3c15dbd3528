package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the persistence boundary for organizations.
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	Get(ctx context.Context, id uuid.UUID) (*Organization, error)
	Update(ctx context.Context, org *Organization) error
	List(ctx context.Context) ([]Organization, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL-backed organization repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orgColumns = `id, name, has_multiple_divisions, has_multiple_clusters, enable_lifecycle_tracking,
	import_level, division_csv_type, sop_cycle, divisions, clusters, created_at, updated_at`

// Create inserts a new organization.
func (r *PostgresRepository) Create(ctx context.Context, org *Organization) error {
	query := `
		INSERT INTO organizations (id, name, has_multiple_divisions, has_multiple_clusters,
			enable_lifecycle_tracking, import_level, division_csv_type, sop_cycle, divisions, clusters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		org.ID, org.Name, org.HasMultipleDivisions, org.HasMultipleClusters,
		org.EnableLifecycleTracking, org.ImportLevel, org.DivisionCSVType,
		org.SOPCycle, org.Divisions, org.Clusters,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Get fetches an organization by id.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`

	var org Organization
	err := r.db.QueryRow(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.HasMultipleDivisions, &org.HasMultipleClusters,
		&org.EnableLifecycleTracking, &org.ImportLevel, &org.DivisionCSVType,
		&org.SOPCycle, &org.Divisions, &org.Clusters, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// Update rewrites the organization's configuration.
func (r *PostgresRepository) Update(ctx context.Context, org *Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, has_multiple_divisions = $3, has_multiple_clusters = $4,
			enable_lifecycle_tracking = $5, import_level = $6, division_csv_type = $7,
			sop_cycle = $8, divisions = $9, clusters = $10, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		org.ID, org.Name, org.HasMultipleDivisions, org.HasMultipleClusters,
		org.EnableLifecycleTracking, org.ImportLevel, org.DivisionCSVType,
		org.SOPCycle, org.Divisions, org.Clusters,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all organizations, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(
			&org.ID, &org.Name, &org.HasMultipleDivisions, &org.HasMultipleClusters,
			&org.EnableLifecycleTracking, &org.ImportLevel, &org.DivisionCSVType,
			&org.SOPCycle, &org.Divisions, &org.Clusters, &org.CreatedAt, &org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return orgs, nil
}
