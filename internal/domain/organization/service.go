package organization

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/demandsight/demand-planner/internal/domain/import/roles"
)

// Service wraps the repository with validation and defaulting.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates an organization service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create validates and stores a new organization.
func (s *Service) Create(ctx context.Context, org *Organization) error {
	if err := normalize(org); err != nil {
		return err
	}
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return err
	}
	s.logger.Info("organization created",
		"organizationID", org.ID,
		"name", org.Name,
		"importLevel", org.ImportLevel,
	)
	return nil
}

// Get fetches an organization.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.repo.Get(ctx, id)
}

// Update validates and rewrites an organization's configuration.
func (s *Service) Update(ctx context.Context, org *Organization) error {
	if err := normalize(org); err != nil {
		return err
	}
	return s.repo.Update(ctx, org)
}

// List returns all organizations.
func (s *Service) List(ctx context.Context) ([]Organization, error) {
	return s.repo.List(ctx)
}

// SetDivisions replaces an organization's division list.
func (s *Service) SetDivisions(ctx context.Context, id uuid.UUID, divisions []string) (*Organization, error) {
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	org.Divisions = dedupeNames(divisions)
	org.HasMultipleDivisions = len(org.Divisions) > 1
	if err := s.repo.Update(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// SetClusters replaces an organization's cluster list.
func (s *Service) SetClusters(ctx context.Context, id uuid.UUID, clusters []string) (*Organization, error) {
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	org.Clusters = dedupeNames(clusters)
	org.HasMultipleClusters = len(org.Clusters) > 1
	if err := s.repo.Update(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// Capabilities loads the capability snapshot the import engine consumes.
func (s *Service) Capabilities(ctx context.Context, id uuid.UUID) (roles.OrgCapabilities, error) {
	org, err := s.repo.Get(ctx, id)
	if err != nil {
		return roles.OrgCapabilities{}, err
	}
	return org.Capabilities(), nil
}

// dedupeNames trims, drops empties, and keeps first occurrences in order.
func dedupeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// normalize applies defaults and rejects inconsistent configurations.
func normalize(org *Organization) error {
	org.Name = strings.TrimSpace(org.Name)
	if org.Name == "" {
		return fmt.Errorf("organization name is required")
	}
	if org.ImportLevel == "" {
		org.ImportLevel = string(roles.ImportLevelCompany)
	}
	switch roles.ImportLevel(org.ImportLevel) {
	case roles.ImportLevelCompany, roles.ImportLevelDivision:
	default:
		return fmt.Errorf("unknown import level %q", org.ImportLevel)
	}
	if org.DivisionCSVType == "" {
		org.DivisionCSVType = string(roles.DivisionCSVWithColumn)
	}
	switch roles.DivisionCSVType(org.DivisionCSVType) {
	case roles.DivisionCSVWithColumn, roles.DivisionCSVWithoutColumn:
	default:
		return fmt.Errorf("unknown division csv type %q", org.DivisionCSVType)
	}
	if org.SOPCycle == "" {
		org.SOPCycle = "monthly"
	}
	if !org.HasMultipleDivisions && roles.ImportLevel(org.ImportLevel) == roles.ImportLevelDivision {
		return fmt.Errorf("division-level imports require multiple divisions")
	}
	return nil
}
