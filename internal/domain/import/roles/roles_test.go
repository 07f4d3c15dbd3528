package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandsight/demand-planner/internal/domain/import/sheet"
	"github.com/demandsight/demand-planner/internal/domain/import/sniffer"
)

func allCaps() OrgCapabilities {
	return OrgCapabilities{
		HasMultipleDivisions:    true,
		HasMultipleClusters:     true,
		EnableLifecycleTracking: true,
		ImportLevel:             ImportLevelCompany,
		DivisionCSVType:         DivisionCSVWithColumn,
	}
}

func wideSheet(t *testing.T) *sheet.Sheet {
	t.Helper()
	sh, err := sheet.FromRecords([][]string{
		{"SKU", "Name", "Division", "01/01/2024", "01/02/2024", "01/03/2024"},
		{"A-1", "Widget", "North", "100", "150", "200"},
		{"A-2", "Gadget", "South", "50", "", "75"},
	})
	require.NoError(t, err)
	return sh
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, MaterialCode(), ParseRole("materialCode"))
	assert.Equal(t, Date(), ParseRole("DATE"))
	assert.Equal(t, Ignore(), ParseRole(""))
	assert.Equal(t, Dimension("brand"), ParseRole("brand"), "unknown names become dimensions")
}

func TestSeed(t *testing.T) {
	c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
	c.Seed()

	rs := c.Roles()
	assert.Equal(t, MaterialCode(), rs[0])
	assert.Equal(t, Description(), rs[1])
	assert.Equal(t, Division(), rs[2])
	assert.Equal(t, Date(), rs[3])
	assert.Equal(t, Date(), rs[4])
	assert.Equal(t, Date(), rs[5])
}

func TestSeedRespectsCapabilities(t *testing.T) {
	caps := allCaps()
	caps.HasMultipleDivisions = false

	c := NewClassifier(wideSheet(t), caps, sniffer.DateDMYSlash, 0)
	c.Seed()

	assert.Equal(t, Ignore(), c.RoleAt(2), "division header is not claimed when the organization has no divisions")
}

func TestAssignReinterpretation(t *testing.T) {
	t.Run("unavailable restricted role becomes header dimension", func(t *testing.T) {
		caps := allCaps()
		caps.HasMultipleClusters = false

		c := NewClassifier(wideSheet(t), caps, sniffer.DateDMYSlash, 0)
		c.Seed()

		a, err := c.Assign(2, Cluster())
		require.NoError(t, err)
		assert.True(t, a.Reinterpreted)
		assert.Equal(t, Dimension("Division"), a.Applied)
		assert.Equal(t, Dimension("Division"), c.RoleAt(2))
	})

	t.Run("exclusive role already taken becomes header dimension", func(t *testing.T) {
		c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
		c.Seed()

		// Column 0 already holds materialCode.
		a, err := c.Assign(1, MaterialCode())
		require.NoError(t, err)
		assert.True(t, a.Reinterpreted)
		assert.Equal(t, Dimension("Name"), a.Applied)
	})

	t.Run("date-headed column falls back to ignore, not a period dimension", func(t *testing.T) {
		caps := allCaps()
		caps.HasMultipleDivisions = false

		c := NewClassifier(wideSheet(t), caps, sniffer.DateDMYSlash, 0)
		c.Seed()

		a, err := c.Assign(4, Division())
		require.NoError(t, err)
		assert.True(t, a.Reinterpreted)
		assert.Equal(t, Ignore(), a.Applied)
	})

	t.Run("out-of-band division is never assignable", func(t *testing.T) {
		caps := allCaps()
		caps.ImportLevel = ImportLevelDivision
		caps.DivisionCSVType = DivisionCSVWithoutColumn

		c := NewClassifier(wideSheet(t), caps, sniffer.DateDMYSlash, 0)
		c.Seed()

		a, err := c.Assign(2, Division())
		require.NoError(t, err)
		assert.True(t, a.Reinterpreted)
		assert.Equal(t, Dimension("Division"), a.Applied)
	})

	t.Run("plain assignment passes through", func(t *testing.T) {
		c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
		c.Seed()

		a, err := c.Assign(1, Dimension("brand"))
		require.NoError(t, err)
		assert.False(t, a.Reinterpreted)
		assert.Equal(t, Dimension("brand"), c.RoleAt(1))
	})
}

func TestAssignDateValidation(t *testing.T) {
	t.Run("cells full of numbers but date header passes", func(t *testing.T) {
		c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
		c.Seed()

		// Column 3's cells are sales figures; the header itself is the period.
		_, err := c.Assign(3, Date())
		assert.NoError(t, err)
	})

	t.Run("non-date column fails with details", func(t *testing.T) {
		c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
		c.Seed()

		_, err := c.Assign(1, Date())
		require.Error(t, err)

		var dateErr *DateValidationError
		require.ErrorAs(t, err, &dateErr)
		assert.Equal(t, "Name", dateErr.Column)
		assert.Equal(t, sniffer.DateDMYSlash, dateErr.Format)
		assert.Equal(t, Description(), c.RoleAt(1), "failed assignment leaves the role untouched")
	})

	t.Run("column of actual dates passes", func(t *testing.T) {
		sh, err := sheet.FromRecords([][]string{
			{"SKU", "Delivery"},
			{"A-1", "05/01/2024"},
			{"A-2", "12/01/2024"},
			{"A-3", ""},
		})
		require.NoError(t, err)

		c := NewClassifier(sh, allCaps(), sniffer.DateDMYSlash, 0)
		c.Seed()

		_, err = c.Assign(1, Date())
		assert.NoError(t, err)
	})
}

func TestDateRange(t *testing.T) {
	c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
	c.Seed()

	start, end, ok := DateRange(c.Roles())
	require.True(t, ok)
	assert.Equal(t, 3, start)
	assert.Equal(t, 5, end)

	_, _, ok = DateRange([]Role{MaterialCode(), Ignore()})
	assert.False(t, ok)
}

func TestSetDateRange(t *testing.T) {
	c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
	c.Seed()

	t.Run("narrowing reverts outside dates to ignore", func(t *testing.T) {
		require.NoError(t, c.SetDateRange(3, 4))
		assert.Equal(t, Date(), c.RoleAt(3))
		assert.Equal(t, Date(), c.RoleAt(4))
		assert.Equal(t, Ignore(), c.RoleAt(5))
	})

	t.Run("widening re-tags ignored columns but protects identity", func(t *testing.T) {
		require.NoError(t, c.SetDateRange(1, 5))
		assert.Equal(t, MaterialCode(), c.RoleAt(0))
		assert.Equal(t, Description(), c.RoleAt(1), "identity columns inside the span stay")
		assert.Equal(t, Division(), c.RoleAt(2))
		assert.Equal(t, Date(), c.RoleAt(5))
	})

	t.Run("invalid bounds rejected", func(t *testing.T) {
		assert.Error(t, c.SetDateRange(-1, 2))
		assert.Error(t, c.SetDateRange(4, 3))
		assert.Error(t, c.SetDateRange(0, 99))
	})

	t.Run("dimensions inside the span become dates", func(t *testing.T) {
		c := NewClassifier(wideSheet(t), allCaps(), sniffer.DateDMYSlash, 0)
		c.Seed()
		_, err := c.Assign(4, Dimension("Notes"))
		require.NoError(t, err)

		require.NoError(t, c.SetDateRange(3, 5))
		assert.Equal(t, Date(), c.RoleAt(4))
	})
}

func TestOrgCapabilitiesAllows(t *testing.T) {
	caps := OrgCapabilities{
		HasMultipleDivisions: true,
		ImportLevel:          ImportLevelDivision,
		DivisionCSVType:      DivisionCSVWithoutColumn,
	}
	assert.False(t, caps.Allows(KindDivision), "out-of-band division blocks the column role")
	assert.False(t, caps.Allows(KindCluster))
	assert.True(t, caps.Allows(KindDimension))

	caps.DivisionCSVType = DivisionCSVWithColumn
	assert.True(t, caps.Allows(KindDivision))
}
