// Package roles assigns every sheet column a role from a closed vocabulary
// plus free-form aggregatable dimensions, under the structural rules the
// organization's configuration imposes. The classifier is the single place
// where role legality, exclusivity, and silent reinterpretation are decided;
// the normalizer and validator only consume its output.
package roles

import (
	"fmt"
	"strings"

	"github.com/demandsight/demand-planner/internal/domain/import/sheet"
	"github.com/demandsight/demand-planner/internal/domain/import/sniffer"
)

// Kind enumerates the fixed role vocabulary.
type Kind int

const (
	KindIgnore Kind = iota
	KindMaterialCode
	KindDescription
	KindDate
	KindDivision
	KindCluster
	KindLifecyclePhase
	// KindDimension is the open variant: an aggregatable field named after a
	// CSV header or a user-declared custom field, carried through to output
	// verbatim.
	KindDimension
)

// Role is a tagged value: a fixed Kind, or KindDimension with a Name.
type Role struct {
	Kind Kind
	// Name is only set for KindDimension.
	Name string
}

func Ignore() Role         { return Role{Kind: KindIgnore} }
func MaterialCode() Role   { return Role{Kind: KindMaterialCode} }
func Description() Role    { return Role{Kind: KindDescription} }
func Date() Role           { return Role{Kind: KindDate} }
func Division() Role       { return Role{Kind: KindDivision} }
func Cluster() Role        { return Role{Kind: KindCluster} }
func LifecyclePhase() Role { return Role{Kind: KindLifecyclePhase} }

// Dimension returns the aggregatable role named after name.
func Dimension(name string) Role { return Role{Kind: KindDimension, Name: name} }

var kindNames = map[Kind]string{
	KindIgnore:         "ignore",
	KindMaterialCode:   "materialCode",
	KindDescription:    "description",
	KindDate:           "date",
	KindDivision:       "division",
	KindCluster:        "cluster",
	KindLifecyclePhase: "lifecyclePhase",
}

// String returns the wire name of the role. Dimensions render as their name.
func (r Role) String() string {
	if r.Kind == KindDimension {
		return r.Name
	}
	return kindNames[r.Kind]
}

// ParseRole maps a wire name back to a Role. Unrecognized names become
// dimensions named by the string itself, which is how AI suggestions can
// introduce custom aggregatable fields.
func ParseRole(s string) Role {
	name := strings.TrimSpace(s)
	for kind, known := range kindNames {
		if strings.EqualFold(name, known) {
			return Role{Kind: kind}
		}
	}
	if name == "" {
		return Ignore()
	}
	return Dimension(name)
}

// exclusive reports whether the role may be held by at most one column.
// Ignore, Date, and dimensions are the only multi-column roles.
func (r Role) exclusive() bool {
	switch r.Kind {
	case KindMaterialCode, KindDescription, KindDivision, KindCluster, KindLifecyclePhase:
		return true
	}
	return false
}

// restricted reports whether the role is gated by organization configuration.
func (r Role) restricted() bool {
	switch r.Kind {
	case KindDivision, KindCluster, KindLifecyclePhase:
		return true
	}
	return false
}

// ImportLevel selects whether sheets are imported for the whole company or
// one division at a time.
type ImportLevel string

const (
	ImportLevelCompany  ImportLevel = "company"
	ImportLevelDivision ImportLevel = "division"
)

// DivisionCSVType describes, for division-level imports, whether the sheet
// itself carries a division column or the division is selected out of band.
type DivisionCSVType string

const (
	DivisionCSVWithColumn    DivisionCSVType = "withDivisionColumn"
	DivisionCSVWithoutColumn DivisionCSVType = "withoutDivisionColumn"
)

// OrgCapabilities is the read-only organization configuration snapshot that
// gates which restricted roles are legal. The engine never mutates it.
type OrgCapabilities struct {
	HasMultipleDivisions    bool
	HasMultipleClusters     bool
	EnableLifecycleTracking bool
	ImportLevel             ImportLevel
	DivisionCSVType         DivisionCSVType
}

// DivisionOutOfBand reports whether the division is chosen in the wizard
// rather than carried as a sheet column. In that workflow a Division column
// is neither required nor assignable.
func (c OrgCapabilities) DivisionOutOfBand() bool {
	return c.ImportLevel == ImportLevelDivision && c.DivisionCSVType == DivisionCSVWithoutColumn
}

// Allows reports whether the capability snapshot permits assigning the kind.
func (c OrgCapabilities) Allows(k Kind) bool {
	switch k {
	case KindDivision:
		return c.HasMultipleDivisions && !c.DivisionOutOfBand()
	case KindCluster:
		return c.HasMultipleClusters
	case KindLifecyclePhase:
		return c.EnableLifecycleTracking
	}
	return true
}

// DateValidationError is returned when a Date assignment fails the sample
// check: the column's values do not parse under the currently selected
// format often enough.
type DateValidationError struct {
	Column    string
	Format    sniffer.DateFormat
	Ratio     float64
	Threshold float64
}

func (e *DateValidationError) Error() string {
	return fmt.Sprintf(
		"column %q cannot be used as a date: only %.0f%% of its values parse as %s (need %.0f%%)",
		e.Column, e.Ratio*100, e.Format, e.Threshold*100,
	)
}

// Assignment records the outcome of one role assignment.
type Assignment struct {
	Column    int
	Requested Role
	Applied   Role
	// Reinterpreted is true when the requested role was silently replaced
	// by a safe alternative (unavailable restricted role, or exclusive role
	// already taken). The wizard logs and counts these separately from
	// validated assignments.
	Reinterpreted bool
	Reason        string
}

// DefaultDateThreshold is the fraction of non-empty cells that must parse as
// dates before a Date assignment is accepted. Kept configurable; the value
// itself is a heuristic, not load-bearing.
const DefaultDateThreshold = 0.5

// Classifier holds the per-column role state for one sheet. It is seeded by
// heuristics and then mutated by user or AI assignments; the roles slice is
// always parallel to the sheet's headers.
type Classifier struct {
	sheet         *sheet.Sheet
	caps          OrgCapabilities
	dateFormat    sniffer.DateFormat
	dateThreshold float64
	roles         []Role
}

// NewClassifier creates a classifier with every column ignored. threshold <= 0
// selects DefaultDateThreshold.
func NewClassifier(sh *sheet.Sheet, caps OrgCapabilities, format sniffer.DateFormat, threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultDateThreshold
	}
	c := &Classifier{
		sheet:         sh,
		caps:          caps,
		dateFormat:    format,
		dateThreshold: threshold,
		roles:         make([]Role, len(sh.Headers)),
	}
	return c
}

// Roles returns a copy of the current role assignment, parallel to Headers.
func (c *Classifier) Roles() []Role {
	return append([]Role(nil), c.roles...)
}

// RoleAt returns the role of column i.
func (c *Classifier) RoleAt(i int) Role {
	if i < 0 || i >= len(c.roles) {
		return Ignore()
	}
	return c.roles[i]
}

// SetDateFormat switches the active date format. Existing Date roles are kept;
// the caller decides whether to re-seed.
func (c *Classifier) SetDateFormat(format sniffer.DateFormat) {
	c.dateFormat = format
}

// DateFormat returns the active date format.
func (c *Classifier) DateFormat() sniffer.DateFormat {
	return c.dateFormat
}

// Seed applies the positional and substring heuristics: column 0 is the
// material code, column 1 the description, date-looking headers become Date,
// and headers containing "division"/"cluster"/"lifecycle" claim those roles
// when the organization permits them. Seeding writes roles directly; the
// per-assignment date-sample validation only applies to explicit assignments.
func (c *Classifier) Seed() {
	used := map[Kind]bool{}
	for i, header := range c.sheet.Headers {
		h := strings.ToLower(strings.TrimSpace(header))
		switch {
		case i == 0:
			c.roles[i] = MaterialCode()
			used[KindMaterialCode] = true
		case i == 1 && !c.dateFormat.Explains(header):
			c.roles[i] = Description()
			used[KindDescription] = true
		case c.dateFormat.Explains(header):
			c.roles[i] = Date()
		case strings.Contains(h, "division") && c.caps.Allows(KindDivision) && !used[KindDivision]:
			c.roles[i] = Division()
			used[KindDivision] = true
		case strings.Contains(h, "cluster") && c.caps.Allows(KindCluster) && !used[KindCluster]:
			c.roles[i] = Cluster()
			used[KindCluster] = true
		case (strings.Contains(h, "lifecycle") || strings.Contains(h, "phase")) &&
			c.caps.Allows(KindLifecyclePhase) && !used[KindLifecyclePhase]:
			c.roles[i] = LifecyclePhase()
			used[KindLifecyclePhase] = true
		default:
			c.roles[i] = Ignore()
		}
	}
}

// Assign requests a role for column i, applying the transition rules:
//
//   - restricted roles the organization does not permit are not rejected but
//     silently reinterpreted as an aggregatable dimension named after the
//     column's own header (or Ignore when that header is itself a date, to
//     avoid aggregating a period column);
//   - exclusive roles already held by another column take the same
//     reinterpretation path;
//   - Date is validated against the column's own sample values and rejected
//     with a DateValidationError when too few parse.
//
// The returned Assignment says what was actually applied.
func (c *Classifier) Assign(i int, requested Role) (Assignment, error) {
	if i < 0 || i >= len(c.roles) {
		return Assignment{}, fmt.Errorf("column index %d out of range", i)
	}

	a := Assignment{Column: i, Requested: requested, Applied: requested}

	if requested.restricted() && !c.caps.Allows(requested.Kind) {
		a.Applied = c.safeAlternative(i)
		a.Reinterpreted = true
		a.Reason = fmt.Sprintf("role %s not available for this organization", requested)
		c.roles[i] = a.Applied
		return a, nil
	}

	if requested.exclusive() {
		if taken, holder := c.roleTaken(requested, i); taken {
			a.Applied = c.safeAlternative(i)
			a.Reinterpreted = true
			a.Reason = fmt.Sprintf("role %s already assigned to column %q", requested, c.sheet.Headers[holder])
			c.roles[i] = a.Applied
			return a, nil
		}
	}

	if requested.Kind == KindDate {
		if err := c.validateDateColumn(i); err != nil {
			return Assignment{}, err
		}
	}

	c.roles[i] = requested
	return a, nil
}

// safeAlternative picks the fallback role for a column whose requested role
// is unavailable: its own header as an aggregatable dimension, unless the
// header is a period value under the active format, in which case Ignore.
func (c *Classifier) safeAlternative(i int) Role {
	header := c.sheet.Headers[i]
	if c.dateFormat.Explains(header) {
		return Ignore()
	}
	return Dimension(header)
}

func (c *Classifier) roleTaken(r Role, except int) (bool, int) {
	for i, existing := range c.roles {
		if i == except {
			continue
		}
		if existing.Kind == r.Kind {
			return true, i
		}
	}
	return false, -1
}

// validateDateColumn checks that enough of the column's non-empty cells parse
// under the active date format. A column with no non-empty cells passes: the
// header itself carries the period in wide orientation.
func (c *Classifier) validateDateColumn(i int) error {
	values := c.sheet.ColumnAt(i)
	nonEmpty, parsed := 0, 0
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		nonEmpty++
		if c.dateFormat.Explains(v) {
			parsed++
		}
	}
	if nonEmpty == 0 {
		if c.dateFormat.Explains(c.sheet.Headers[i]) {
			return nil
		}
		return &DateValidationError{
			Column: c.sheet.Headers[i], Format: c.dateFormat, Ratio: 0, Threshold: c.dateThreshold,
		}
	}
	ratio := float64(parsed) / float64(nonEmpty)
	if ratio < c.dateThreshold {
		// The header being a period value rescues the column: in wide
		// orientation the cells under a period header are sales numbers.
		if c.dateFormat.Explains(c.sheet.Headers[i]) {
			return nil
		}
		return &DateValidationError{
			Column: c.sheet.Headers[i], Format: c.dateFormat, Ratio: ratio, Threshold: c.dateThreshold,
		}
	}
	return nil
}

// DateRange returns the contiguous index span [start, end] of columns holding
// the Date role. ok is false when no column is a Date. Non-Date columns
// sitting inside the span are permitted; the normalizer skips them.
func DateRange(rs []Role) (start, end int, ok bool) {
	start, end = -1, -1
	for i, r := range rs {
		if r.Kind != KindDate {
			continue
		}
		if start == -1 {
			start = i
		}
		end = i
	}
	return start, end, start != -1
}

// SetDateRange re-tags the classifier to the new period span: columns inside
// [start, end] currently holding Date, Ignore, or a dimension become Date,
// and Date columns outside the span revert to Ignore. Identity and
// organizational columns inside the span are left alone so widening a range
// cannot destroy the material-code mapping.
func (c *Classifier) SetDateRange(start, end int) error {
	if start < 0 || end >= len(c.roles) || start > end {
		return fmt.Errorf("invalid date range [%d, %d]", start, end)
	}
	for i := range c.roles {
		inside := i >= start && i <= end
		switch {
		case inside && retaggable(c.roles[i]):
			c.roles[i] = Date()
		case !inside && c.roles[i].Kind == KindDate:
			c.roles[i] = Ignore()
		}
	}
	return nil
}

func retaggable(r Role) bool {
	switch r.Kind {
	case KindIgnore, KindDate, KindDimension:
		return true
	}
	return false
}
