// Package repository persists committed import datasets. The engine treats
// this as an external collaborator: it only ever receives finished
// NormalizedRecord slices plus the dimension artifact, and a failure here is
// terminal for the current import attempt.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/demandsight/demand-planner/internal/domain/import/normalizer"
)

// DatasetSummary is what the persistence collaborator hands back after a
// successful import: an opaque dataset id and the headline numbers the wizard
// shows.
type DatasetSummary struct {
	DatasetID    uuid.UUID `json:"datasetId"`
	SKUCount     int       `json:"skuCount"`
	DateStart    string    `json:"dateStart"`
	DateEnd      string    `json:"dateEnd"`
	TotalPeriods int       `json:"totalPeriods"`
}

// Dataset is the stored header row for one committed import.
type Dataset struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	FileName       string
	SKUCount       int
	DateStart      string
	DateEnd        string
	TotalPeriods   int
	CreatedAt      time.Time
}

// ImportRepository is the persistence boundary for committed imports.
type ImportRepository interface {
	// SaveDataset stores the normalized records and the dimension artifact
	// under a new dataset id. Superseded data is removed beforehand through
	// the Delete methods; SaveDataset itself only inserts.
	SaveDataset(ctx context.Context, orgID uuid.UUID, fileName string, records []normalizer.Record, dims normalizer.DimensionSet) (*DatasetSummary, error)

	// GetDataset fetches a dataset header.
	GetDataset(ctx context.Context, id uuid.UUID) (*Dataset, error)

	// DeleteDatasetsForDivisions removes prior datasets covering the given
	// divisions, implementing the confirmed-overwrite path for
	// division-scoped imports.
	DeleteDatasetsForDivisions(ctx context.Context, orgID uuid.UUID, divisions []string) error

	// DeleteDatasetsForOrganization removes every dataset the organization
	// holds, implementing the confirmed-overwrite path for company-level
	// imports where the new sheet supersedes all prior data.
	DeleteDatasetsForOrganization(ctx context.Context, orgID uuid.UUID) error
}

// Summarize computes the dataset summary from the records themselves, so the
// stored header can never drift from the stored rows.
func Summarize(records []normalizer.Record) (skuCount int, dateStart, dateEnd string, totalPeriods int) {
	skus := map[string]bool{}
	periods := map[string]bool{}
	for _, r := range records {
		skus[r.MaterialCode] = true
		if !periods[r.Date] {
			periods[r.Date] = true
			if dateStart == "" || r.Date < dateStart {
				dateStart = r.Date
			}
			if r.Date > dateEnd {
				dateEnd = r.Date
			}
		}
	}
	return len(skus), dateStart, dateEnd, len(periods)
}
