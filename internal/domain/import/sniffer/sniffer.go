// Package sniffer infers the formatting conventions of an arbitrary
// spreadsheet export: field separator, date pattern, numeric locale, and
// orientation. Every detector is a pure function over its sample; results are
// advisory and can be overridden by the user or the AI assistant.
package sniffer

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// DateFormat identifies one of the canonical date patterns the engine
// understands. The value is the human-facing pattern shown in the wizard.
type DateFormat string

const (
	DateDMYSlash DateFormat = "dd/mm/yyyy"
	DateMDYSlash DateFormat = "mm/dd/yyyy"
	DateYMDDash  DateFormat = "yyyy-mm-dd"
	DateDMYDash  DateFormat = "dd-mm-yyyy"
	DateYMDSlash DateFormat = "yyyy/mm/dd"
	DateMYSlash  DateFormat = "mm/yyyy"
	DateYMDash   DateFormat = "yyyy-mm"

	DefaultDate = DateDMYSlash
)

// DateFormats lists every canonical format in declaration order. Order
// matters: detection ties resolve to the earliest entry.
var DateFormats = []DateFormat{
	DateDMYSlash, DateMDYSlash, DateYMDDash, DateDMYDash, DateYMDSlash,
	DateMYSlash, DateYMDash,
}

var dateLayouts = map[DateFormat]string{
	DateDMYSlash: "02/01/2006",
	DateMDYSlash: "01/02/2006",
	DateYMDDash:  "2006-01-02",
	DateDMYDash:  "02-01-2006",
	DateYMDSlash: "2006/01/02",
	DateMYSlash:  "01/2006",
	DateYMDash:   "2006-01",
}

// Layout returns the Go time layout for the format.
func (f DateFormat) Layout() string {
	return dateLayouts[f]
}

// Valid reports whether f is one of the canonical formats.
func (f DateFormat) Valid() bool {
	_, ok := dateLayouts[f]
	return ok
}

// Parse attempts to parse s under the format. time.Parse already rejects
// impossible calendar dates (month 13, February 30th), which is exactly the
// "explains" predicate detection needs.
func (f DateFormat) Parse(s string) (time.Time, error) {
	return time.Parse(f.Layout(), strings.TrimSpace(s))
}

// Explains reports whether s is a valid calendar date under the format.
func (f DateFormat) Explains(s string) bool {
	_, err := f.Parse(s)
	return err == nil
}

// DetectSeparator picks the field delimiter from the first text line of the
// file. The candidate that splits the line into the most fields wins; ties
// resolve to the earliest candidate, so a pathological single-column file
// degenerates to comma and is rejected later by structural validation.
func DetectSeparator(line string) rune {
	candidates := []rune{',', ';', '\t', '|'}
	best := candidates[0]
	bestCount := strings.Count(line, string(best))
	for _, c := range candidates[1:] {
		if count := strings.Count(line, string(c)); count > bestCount {
			bestCount = count
			best = c
		}
	}
	return best
}

// DetectDateFormat infers which canonical format a batch of candidate strings
// follows. Only candidates containing a digit participate. The score of a
// format is how many candidates it explains, so an ambiguous value like
// "03/04/2024" is settled by the rest of the batch rather than guessed
// per-value. Remaining ties resolve in canonical declaration order. When
// nothing parses the documented default (dd/mm/yyyy) is returned.
func DetectDateFormat(candidates []string) DateFormat {
	samples := digitBearing(candidates)
	if len(samples) == 0 {
		return DefaultDate
	}

	best := DefaultDate
	bestScore := 0
	for _, format := range DateFormats {
		score := 0
		for _, s := range samples {
			if format.Explains(s) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = format
		}
	}
	if bestScore == 0 {
		return DefaultDate
	}
	return best
}

// CountExplained returns how many digit-bearing candidates parse under the
// format. Orientation probing compares this score across the header row and
// the first column.
func CountExplained(candidates []string, format DateFormat) int {
	count := 0
	for _, s := range digitBearing(candidates) {
		if format.Explains(s) {
			count++
		}
	}
	return count
}

// NumberFormat identifies a numeric locale convention by literal exemplar.
// The exemplar encodes the decimal separator and the (optional) thousands
// separator.
type NumberFormat string

const (
	NumUS         NumberFormat = "1,234.56" // comma thousands, dot decimal
	NumEU         NumberFormat = "1.234,56" // dot thousands, comma decimal
	NumPlainDot   NumberFormat = "1234.56"  // no thousands, dot decimal
	NumSpaceEU    NumberFormat = "1 234,56" // space thousands, comma decimal
	NumPlainComma NumberFormat = "1234,56"  // no thousands, comma decimal

	DefaultNumber = NumUS
)

// NumberFormats lists every canonical numeric convention in preference order.
var NumberFormats = []NumberFormat{NumUS, NumEU, NumPlainDot, NumSpaceEU, NumPlainComma}

type numberSeps struct {
	decimal   rune
	thousands rune // 0 when the format has none
}

var numberSepTable = map[NumberFormat]numberSeps{
	NumUS:         {decimal: '.', thousands: ','},
	NumEU:         {decimal: ',', thousands: '.'},
	NumPlainDot:   {decimal: '.'},
	NumSpaceEU:    {decimal: ',', thousands: ' '},
	NumPlainComma: {decimal: ','},
}

// Valid reports whether f is one of the canonical formats.
func (f NumberFormat) Valid() bool {
	_, ok := numberSepTable[f]
	return ok
}

// DecimalSeparator returns the decimal separator rune for the format.
func (f NumberFormat) DecimalSeparator() rune {
	return numberSepTable[f].decimal
}

// ThousandsSeparator returns the thousands separator, or 0 if none.
func (f NumberFormat) ThousandsSeparator() rune {
	return numberSepTable[f].thousands
}

// Parse interprets s under the format's separator rules and returns an exact
// decimal. Currency symbols and surrounding noise are stripped first;
// parenthesized values are treated as negatives.
func (f NumberFormat) Parse(s string) (decimal.Decimal, error) {
	seps := numberSepTable[f]

	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = strings.Trim(s, "()")
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '-' || r == seps.decimal || (seps.thousands != 0 && r == seps.thousands) {
			return r
		}
		if r == 0x00A0 && seps.thousands == ' ' { // non-breaking space grouping
			return ' '
		}
		return -1
	}, s)

	if seps.thousands != 0 {
		cleaned = strings.ReplaceAll(cleaned, string(seps.thousands), "")
	}
	if seps.decimal != '.' {
		cleaned = strings.ReplaceAll(cleaned, string(seps.decimal), ".")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// Explains reports whether s parses to a finite number under the format
// without any foreign separator left over.
func (f NumberFormat) Explains(s string) bool {
	seps := numberSepTable[f]
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	// A value containing a separator the format does not use is not
	// explained by it, even if stripping would make it parse.
	for _, r := range trimmed {
		if (r == ',' || r == '.' || r == ' ') && r != seps.decimal && r != seps.thousands {
			return false
		}
	}
	if strings.Count(trimmed, string(seps.decimal)) > 1 {
		return false
	}
	if seps.thousands != 0 && strings.ContainsRune(trimmed, seps.thousands) {
		if !validGrouping(trimmed, seps) {
			return false
		}
	}
	_, err := f.Parse(trimmed)
	return err == nil
}

// validGrouping checks that thousands separators sit before the decimal
// separator and split the integer part into proper groups of three. Without
// this, "1.234,56" would also "parse" under the US convention by silently
// discarding the dots.
func validGrouping(s string, seps numberSeps) bool {
	decIdx := strings.IndexRune(s, seps.decimal)
	lastThousands := strings.LastIndex(s, string(seps.thousands))
	if decIdx >= 0 && lastThousands > decIdx {
		return false
	}

	intPart := s
	if decIdx >= 0 {
		intPart = s[:decIdx]
	}
	groups := strings.Split(intPart, string(seps.thousands))
	for i, g := range groups {
		if i == 0 {
			g = strings.TrimLeft(g, "-+")
			if len(g) == 0 || len(g) > 3 || !allDigits(g) {
				return false
			}
			continue
		}
		if len(g) != 3 || !allDigits(g) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

// usesThousands reports whether the sample actually contains the format's
// thousands separator. Used as the detection tie-break: a format that
// extracts more structure from the data is preferred.
func (f NumberFormat) usesThousands(s string) bool {
	seps := numberSepTable[f]
	return seps.thousands != 0 && strings.ContainsRune(s, seps.thousands)
}

// usesDecimal reports whether the sample contains the format's decimal
// separator.
func (f NumberFormat) usesDecimal(s string) bool {
	seps := numberSepTable[f]
	return seps.decimal != 0 && strings.ContainsRune(s, seps.decimal)
}

// grouped reports whether the format defines a thousands separator at all.
func (f NumberFormat) grouped() bool {
	return numberSepTable[f].thousands != 0
}

// DetectNumberFormat infers the numeric convention from sample cell values.
// Each format scores the number of samples it explains; ties resolve toward
// the format whose thousands separator appears in more samples. When
// decimal separators appear but no sample shows any grouping, the
// grouping-free variant wins the tie, so a grouped format cannot later
// swallow a stray separator as thousands. Remaining ties keep declaration
// order. Defaults to "1,234.56" when nothing parses.
func DetectNumberFormat(samples []string) NumberFormat {
	candidates := digitBearing(samples)
	if len(candidates) == 0 {
		return DefaultNumber
	}

	best := DefaultNumber
	bestScore, bestThousands := 0, -1
	for _, format := range NumberFormats {
		score, thousands, decimals := 0, 0, 0
		for _, s := range candidates {
			if !format.Explains(s) {
				continue
			}
			score++
			if format.usesThousands(s) {
				thousands++
			}
			if format.usesDecimal(s) {
				decimals++
			}
		}
		switch {
		case score > bestScore:
		case score == bestScore && score > 0 && thousands > bestThousands:
		case score == bestScore && score > 0 && thousands == 0 && bestThousands == 0 &&
			decimals > 0 && !format.grouped() && best.grouped():
		default:
			continue
		}
		bestScore = score
		bestThousands = thousands
		best = format
	}
	if bestScore == 0 {
		return DefaultNumber
	}
	return best
}

// OrientationResult carries the orientation probe's verdict: whether the
// sheet needs a transpose to get periods into the header row, and the date
// format detected on the winning axis.
type OrientationResult struct {
	Transposed bool
	DateFormat DateFormat
}

// ProbeOrientation decides whether periods live in the header row (canonical)
// or in the first column (requires transpose). Each axis is scored by how
// many of its values the axis's own best date format explains; the axis with
// more period-like values wins. The header row wins ties so an already
// canonical sheet is never flipped.
func ProbeOrientation(headers, firstColumn []string) OrientationResult {
	headerFormat := DetectDateFormat(headers)
	columnFormat := DetectDateFormat(firstColumn)

	headerScore := CountExplained(headers, headerFormat)
	columnScore := CountExplained(firstColumn, columnFormat)

	if columnScore > headerScore {
		return OrientationResult{Transposed: true, DateFormat: columnFormat}
	}
	return OrientationResult{Transposed: false, DateFormat: headerFormat}
}

func digitBearing(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if strings.ContainsFunc(v, unicode.IsDigit) {
			out = append(out, v)
		}
	}
	return out
}
