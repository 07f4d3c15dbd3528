// Package storage stages oversized import uploads on disk so the external
// batch pipeline can pick them up later. Files analyzed inline never touch it.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// StagedFile contains metadata about a staged upload
type StagedFile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"` // Internal storage path
	CreatedAt time.Time `json:"created_at"`
}

// Staging defines the interface for the deferred-upload staging area
type Staging interface {
	// Stage stores an upload and returns its metadata
	Stage(ctx context.Context, orgID uuid.UUID, filename string, r io.Reader) (*StagedFile, error)

	// Open returns a reader over a staged upload
	Open(ctx context.Context, orgID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *StagedFile, error)

	// Remove deletes a staged upload once the batch pipeline has consumed it
	Remove(ctx context.Context, orgID uuid.UUID, fileID uuid.UUID) error

	// List returns all staged uploads for an organization
	List(ctx context.Context, orgID uuid.UUID) ([]*StagedFile, error)
}
