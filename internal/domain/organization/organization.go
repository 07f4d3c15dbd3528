// Package organization manages the planning organizations whose configuration
// gates the import wizard: division/cluster structure, lifecycle tracking,
// and the import workflow shape.
package organization

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/demandsight/demand-planner/internal/domain/import/roles"
)

var ErrNotFound = errors.New("organization not found")

// Organization is a planning organization.
type Organization struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	HasMultipleDivisions    bool   `json:"hasMultipleDivisions"`
	HasMultipleClusters     bool   `json:"hasMultipleClusters"`
	EnableLifecycleTracking bool   `json:"enableLifecycleTracking"`
	ImportLevel             string `json:"importLevel"`
	DivisionCSVType         string `json:"divisionCsvType"`

	// SOPCycle is the planning cadence, e.g. "monthly" or "weekly".
	SOPCycle string `json:"sopCycle"`

	Divisions []string `json:"divisions,omitempty"`
	Clusters  []string `json:"clusters,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Capabilities projects the organization onto the snapshot the import engine
// consumes.
func (o *Organization) Capabilities() roles.OrgCapabilities {
	return roles.OrgCapabilities{
		HasMultipleDivisions:    o.HasMultipleDivisions,
		HasMultipleClusters:     o.HasMultipleClusters,
		EnableLifecycleTracking: o.EnableLifecycleTracking,
		ImportLevel:             roles.ImportLevel(o.ImportLevel),
		DivisionCSVType:         roles.DivisionCSVType(o.DivisionCSVType),
	}
}
