// Package validator gates a role assignment before normalization output may
// be handed to the persistence collaborator: structural completeness against
// the organization's configuration, and duplicate/overwrite detection against
// what the session has already imported.
package validator

import (
	"fmt"

	"github.com/demandsight/demand-planner/internal/domain/import/roles"
)

// Violation is one structural problem with the current role assignment.
// Violations are collected, not short-circuited, so the wizard can surface
// them together.
type Violation struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// ValidateRoles checks role completeness: a material-code column is always
// mandatory, and each organizational dimension column is required when the
// capability snapshot enables it (except a division chosen out of band).
func ValidateRoles(rs []roles.Role, caps roles.OrgCapabilities) []Violation {
	var violations []Violation

	has := func(k roles.Kind) bool {
		for _, r := range rs {
			if r.Kind == k {
				return true
			}
		}
		return false
	}

	if !has(roles.KindMaterialCode) {
		violations = append(violations, Violation{
			Role:    roles.MaterialCode().String(),
			Message: "no column is assigned the material code role; exactly one is required",
		})
	}
	if caps.HasMultipleDivisions && !caps.DivisionOutOfBand() && !has(roles.KindDivision) {
		violations = append(violations, Violation{
			Role:    roles.Division().String(),
			Message: "organization has multiple divisions; a division column is required",
		})
	}
	if caps.HasMultipleClusters && !has(roles.KindCluster) {
		violations = append(violations, Violation{
			Role:    roles.Cluster().String(),
			Message: "organization has multiple clusters; a cluster column is required",
		})
	}
	if caps.EnableLifecycleTracking && !has(roles.KindLifecyclePhase) {
		violations = append(violations, Violation{
			Role:    roles.LifecyclePhase().String(),
			Message: "lifecycle tracking is enabled; a lifecycle phase column is required",
		})
	}

	return violations
}

// ImportedCsvRecord is the bookkeeping entry for one sheet already imported
// in this setup session. It exists only for duplicate/overwrite detection and
// session progress display; it is discarded when the session ends.
type ImportedCsvRecord struct {
	FileName     string   `json:"fileName"`
	Divisions    []string `json:"divisions"`
	Clusters     []string `json:"clusters"`
	DivisionName string   `json:"divisionName,omitempty"`
}

// DuplicateCheck is the outcome of checking a new import against the
// session's prior imports. A duplicate is a confirmation decision point, not
// an error: proceeding replaces, cancelling leaves prior state untouched.
type DuplicateCheck struct {
	// RequiresConfirmation is true when the import would replace data the
	// session already holds.
	RequiresConfirmation bool `json:"requiresConfirmation"`
	// Supersedes lists the file names the import would replace.
	Supersedes []string `json:"supersedes,omitempty"`
	// ConflictingDivisions names the overlapping divisions in
	// multi-sheet-per-division mode.
	ConflictingDivisions []string `json:"conflictingDivisions,omitempty"`
	Message              string   `json:"message,omitempty"`
}

// CheckDuplicates evaluates a candidate import against prior session imports.
// In single-sheet mode any prior import is implicitly superseded, pending
// confirmation. In multi-sheet-per-division mode only a division overlap
// triggers a targeted "replace this division's data" confirmation.
func CheckDuplicates(existing []ImportedCsvRecord, incoming ImportedCsvRecord, multiSheet bool) DuplicateCheck {
	if len(existing) == 0 {
		return DuplicateCheck{}
	}

	if !multiSheet {
		check := DuplicateCheck{RequiresConfirmation: true}
		for _, rec := range existing {
			check.Supersedes = append(check.Supersedes, rec.FileName)
		}
		check.Message = fmt.Sprintf(
			"importing %q will replace the previously imported data (%d file(s))",
			incoming.FileName, len(existing),
		)
		return check
	}

	incomingDivisions := map[string]bool{}
	for _, d := range incoming.Divisions {
		incomingDivisions[d] = true
	}
	if incoming.DivisionName != "" {
		incomingDivisions[incoming.DivisionName] = true
	}

	check := DuplicateCheck{}
	seen := map[string]bool{}
	for _, rec := range existing {
		overlap := false
		for _, d := range rec.Divisions {
			if incomingDivisions[d] && !seen[d] {
				seen[d] = true
				check.ConflictingDivisions = append(check.ConflictingDivisions, d)
				overlap = true
			} else if incomingDivisions[d] {
				overlap = true
			}
		}
		if rec.DivisionName != "" && incomingDivisions[rec.DivisionName] {
			if !seen[rec.DivisionName] {
				seen[rec.DivisionName] = true
				check.ConflictingDivisions = append(check.ConflictingDivisions, rec.DivisionName)
			}
			overlap = true
		}
		if overlap {
			check.Supersedes = append(check.Supersedes, rec.FileName)
		}
	}

	if len(check.ConflictingDivisions) > 0 {
		check.RequiresConfirmation = true
		check.Message = fmt.Sprintf(
			"data for division(s) %v was already imported; importing %q will replace it",
			check.ConflictingDivisions, incoming.FileName,
		)
	}
	return check
}
