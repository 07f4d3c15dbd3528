// Package normalizer turns a wide sheet (one row per SKU, one column per
// period) into the long-format records the import API consumes: one record
// per (SKU, period) pair. The transform is deterministic: a pure function of
// the sheet, the role assignment, the active range, and the format settings.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/demandsight/demand-planner/internal/domain/import/roles"
	"github.com/demandsight/demand-planner/internal/domain/import/sheet"
	"github.com/demandsight/demand-planner/internal/domain/import/sniffer"
)

// Settings is the immutable format snapshot one normalization pass runs
// under. Changing any field means a fresh pass, never an in-place mutation.
type Settings struct {
	Separator    rune                 `json:"-"`
	DateFormat   sniffer.DateFormat   `json:"dateFormat"`
	NumberFormat sniffer.NumberFormat `json:"numberFormat"`
	Transposed   bool                 `json:"transposed"`
}

// Record is one normalized (SKU, period) observation. Records are created
// here, consumed by the persistence collaborator, and never mutated after.
type Record struct {
	MaterialCode string            `json:"materialCode"`
	Description  string            `json:"description,omitempty"`
	Date         string            `json:"date"`
	Sales        float64           `json:"sales"`
	Division     string            `json:"division,omitempty"`
	Cluster      string            `json:"cluster,omitempty"`
	Lifecycle    string            `json:"lifecyclePhase,omitempty"`
	Dimensions   map[string]string `json:"dimensions,omitempty"`
}

// Issue flags a data-quality concern found during normalization. Issues never
// abort the transform.
type Issue struct {
	Kind    string `json:"kind"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Result is the output of one normalization pass.
type Result struct {
	Records []Record
	Issues  []Issue
}

// Normalize emits one record for every (data row x Date column inside the
// active range) pair:
//
//   - the period comes from parsing the column header under the date format,
//     rendered yyyy-mm-dd; an unparseable header passes through raw and is
//     flagged as an issue rather than failing;
//   - sales come from parsing the cell under the number format; empty or
//     unparseable cells normalize to 0, since a zero-sales period is
//     meaningful for forecasting and must round-trip, never drop;
//   - identity and dimension values are copied verbatim, with no numeric
//     coercion, so a code like "03" survives;
//   - rows with an empty material code are silently excluded. Whether the
//     sheet has a material-code column at all is the validator's concern.
func Normalize(sh *sheet.Sheet, rs []roles.Role, start, end int, st Settings) *Result {
	result := &Result{}
	if len(sh.Headers) != len(rs) {
		result.Issues = append(result.Issues, Issue{
			Kind:    "role_mismatch",
			Message: fmt.Sprintf("have %d roles for %d columns", len(rs), len(sh.Headers)),
		})
		return result
	}

	materialCol, descCol := -1, -1
	divisionCol, clusterCol, lifecycleCol := -1, -1, -1
	var dimensionCols []int
	var dateCols []int

	for i, r := range rs {
		switch r.Kind {
		case roles.KindMaterialCode:
			materialCol = i
		case roles.KindDescription:
			descCol = i
		case roles.KindDivision:
			divisionCol = i
		case roles.KindCluster:
			clusterCol = i
		case roles.KindLifecyclePhase:
			lifecycleCol = i
		case roles.KindDimension:
			dimensionCols = append(dimensionCols, i)
		case roles.KindDate:
			if i >= start && i <= end {
				dateCols = append(dateCols, i)
			}
		}
	}

	if materialCol < 0 || len(dateCols) == 0 {
		return result
	}

	// Resolve each period column's date once, not per row.
	dates := make(map[int]string, len(dateCols))
	for _, col := range dateCols {
		header := sh.Headers[col]
		if t, err := st.DateFormat.Parse(header); err == nil {
			dates[col] = t.Format("2006-01-02")
		} else {
			dates[col] = header
			result.Issues = append(result.Issues, Issue{
				Kind:    "unparseable_period",
				Column:  header,
				Message: fmt.Sprintf("header %q does not parse as %s; raw value passed through", header, st.DateFormat),
			})
		}
	}

	for r := range sh.Rows {
		code := strings.TrimSpace(sh.Cell(r, sh.Headers[materialCol]))
		if code == "" {
			continue
		}

		base := Record{MaterialCode: code}
		if descCol >= 0 {
			base.Description = sh.Cell(r, sh.Headers[descCol])
		}
		if divisionCol >= 0 {
			base.Division = strings.TrimSpace(sh.Cell(r, sh.Headers[divisionCol]))
		}
		if clusterCol >= 0 {
			base.Cluster = strings.TrimSpace(sh.Cell(r, sh.Headers[clusterCol]))
		}
		if lifecycleCol >= 0 {
			base.Lifecycle = strings.TrimSpace(sh.Cell(r, sh.Headers[lifecycleCol]))
		}
		if len(dimensionCols) > 0 {
			base.Dimensions = make(map[string]string, len(dimensionCols))
			for _, col := range dimensionCols {
				name := rs[col].Name
				base.Dimensions[name] = sh.Cell(r, sh.Headers[col])
			}
		}

		for _, col := range dateCols {
			date := dates[col]
			if date == "" {
				continue
			}
			record := base
			if base.Dimensions != nil {
				record.Dimensions = make(map[string]string, len(base.Dimensions))
				for k, v := range base.Dimensions {
					record.Dimensions[k] = v
				}
			}
			record.Date = date
			record.Sales = parseSales(sh.Cell(r, sh.Headers[col]), st.NumberFormat)
			result.Records = append(result.Records, record)
		}
	}

	return result
}

// parseSales resolves a raw cell to a sales value. Empty strings and values
// that do not parse under the active number format normalize to 0.
func parseSales(raw string, format sniffer.NumberFormat) float64 {
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	d, err := format.Parse(raw)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// DimensionSet is the side artifact of role classification handed to the
// persistence collaborator alongside the records: the distinct organizational
// values seen in the sheet and which clusters appeared under which division.
type DimensionSet struct {
	Divisions       []string            `json:"divisions"`
	Clusters        []string            `json:"clusters"`
	LifecyclePhases []string            `json:"lifecyclePhases"`
	DivisionCluster map[string][]string `json:"divisionClusterMap"`
}

// ExtractDimensions walks the sheet once and collects the distinct values of
// the Division, Cluster, and LifecyclePhase columns, preserving first-seen
// order so output stays deterministic.
func ExtractDimensions(sh *sheet.Sheet, rs []roles.Role) DimensionSet {
	set := DimensionSet{DivisionCluster: map[string][]string{}}
	divisionCol, clusterCol, lifecycleCol := -1, -1, -1
	for i, r := range rs {
		switch r.Kind {
		case roles.KindDivision:
			divisionCol = i
		case roles.KindCluster:
			clusterCol = i
		case roles.KindLifecyclePhase:
			lifecycleCol = i
		}
	}

	seenDivision := map[string]bool{}
	seenCluster := map[string]bool{}
	seenPhase := map[string]bool{}
	seenPair := map[string]bool{}

	for r := range sh.Rows {
		var division, cluster string
		if divisionCol >= 0 {
			division = strings.TrimSpace(sh.Cell(r, sh.Headers[divisionCol]))
			if division != "" && !seenDivision[division] {
				seenDivision[division] = true
				set.Divisions = append(set.Divisions, division)
			}
		}
		if clusterCol >= 0 {
			cluster = strings.TrimSpace(sh.Cell(r, sh.Headers[clusterCol]))
			if cluster != "" && !seenCluster[cluster] {
				seenCluster[cluster] = true
				set.Clusters = append(set.Clusters, cluster)
			}
		}
		if lifecycleCol >= 0 {
			phase := strings.TrimSpace(sh.Cell(r, sh.Headers[lifecycleCol]))
			if phase != "" && !seenPhase[phase] {
				seenPhase[phase] = true
				set.LifecyclePhases = append(set.LifecyclePhases, phase)
			}
		}
		if division != "" && cluster != "" {
			key := division + "\x00" + cluster
			if !seenPair[key] {
				seenPair[key] = true
				set.DivisionCluster[division] = append(set.DivisionCluster[division], cluster)
			}
		}
	}
	return set
}
