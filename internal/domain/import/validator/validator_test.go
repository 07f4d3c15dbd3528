package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandsight/demand-planner/internal/domain/import/roles"
)

func TestValidateRoles(t *testing.T) {
	full := []roles.Role{
		roles.MaterialCode(), roles.Division(), roles.Cluster(),
		roles.LifecyclePhase(), roles.Date(),
	}

	t.Run("complete assignment passes", func(t *testing.T) {
		caps := roles.OrgCapabilities{
			HasMultipleDivisions:    true,
			HasMultipleClusters:     true,
			EnableLifecycleTracking: true,
		}
		assert.Empty(t, ValidateRoles(full, caps))
	})

	t.Run("all problems collected at once", func(t *testing.T) {
		caps := roles.OrgCapabilities{
			HasMultipleDivisions:    true,
			HasMultipleClusters:     true,
			EnableLifecycleTracking: true,
		}
		violations := ValidateRoles([]roles.Role{roles.Ignore(), roles.Date()}, caps)
		require.Len(t, violations, 4)
		assert.Equal(t, "materialCode", violations[0].Role)
	})

	t.Run("material code always required", func(t *testing.T) {
		violations := ValidateRoles([]roles.Role{roles.Date()}, roles.OrgCapabilities{})
		require.Len(t, violations, 1)
		assert.Equal(t, "materialCode", violations[0].Role)
	})

	t.Run("out-of-band division is not required as a column", func(t *testing.T) {
		caps := roles.OrgCapabilities{
			HasMultipleDivisions: true,
			ImportLevel:          roles.ImportLevelDivision,
			DivisionCSVType:      roles.DivisionCSVWithoutColumn,
		}
		violations := ValidateRoles([]roles.Role{roles.MaterialCode(), roles.Date()}, caps)
		assert.Empty(t, violations)
	})

	t.Run("disabled capability not required", func(t *testing.T) {
		violations := ValidateRoles([]roles.Role{roles.MaterialCode()}, roles.OrgCapabilities{})
		assert.Empty(t, violations)
	})
}

func TestCheckDuplicatesSingleSheet(t *testing.T) {
	t.Run("first import sails through", func(t *testing.T) {
		check := CheckDuplicates(nil, ImportedCsvRecord{FileName: "q1.csv"}, false)
		assert.False(t, check.RequiresConfirmation)
	})

	t.Run("any prior import requires confirmation", func(t *testing.T) {
		existing := []ImportedCsvRecord{{FileName: "old.csv"}}
		check := CheckDuplicates(existing, ImportedCsvRecord{FileName: "new.csv"}, false)

		assert.True(t, check.RequiresConfirmation)
		assert.Equal(t, []string{"old.csv"}, check.Supersedes)
		assert.Contains(t, check.Message, "new.csv")
	})
}

func TestCheckDuplicatesMultiSheet(t *testing.T) {
	existing := []ImportedCsvRecord{
		{FileName: "north.csv", Divisions: []string{"North"}},
		{FileName: "south.csv", Divisions: []string{"South"}},
	}

	t.Run("disjoint division passes", func(t *testing.T) {
		check := CheckDuplicates(existing, ImportedCsvRecord{
			FileName:  "east.csv",
			Divisions: []string{"East"},
		}, true)
		assert.False(t, check.RequiresConfirmation)
	})

	t.Run("overlap triggers targeted confirmation", func(t *testing.T) {
		check := CheckDuplicates(existing, ImportedCsvRecord{
			FileName:  "north-v2.csv",
			Divisions: []string{"North"},
		}, true)

		assert.True(t, check.RequiresConfirmation)
		assert.Equal(t, []string{"North"}, check.ConflictingDivisions)
		assert.Equal(t, []string{"north.csv"}, check.Supersedes)
	})

	t.Run("out-of-band division name overlaps too", func(t *testing.T) {
		prior := []ImportedCsvRecord{{FileName: "north.csv", DivisionName: "North"}}
		check := CheckDuplicates(prior, ImportedCsvRecord{
			FileName:     "north-v2.csv",
			DivisionName: "North",
		}, true)

		assert.True(t, check.RequiresConfirmation)
		assert.Equal(t, []string{"North"}, check.ConflictingDivisions)
	})
}
