// Package sheet models a raw spreadsheet export as an ordered header row plus
// data rows, and handles materializing one from CSV or Excel bytes. All
// downstream inference (sniffing, role classification, normalization) operates
// on this shape.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptyFile = errors.New("file is empty")
	ErrNoData    = errors.New("file contains no data rows")
)

// Sheet is a raw sheet in canonical form: ordered headers and rows keyed by
// header. Every row carries the full header set; missing cells are empty
// strings. Leading/trailing empty rows and columns are trimmed at parse time.
type Sheet struct {
	Headers []string
	Rows    []map[string]string
}

// Cell returns the raw value at (row, header). Out-of-range lookups return "".
func (s *Sheet) Cell(row int, header string) string {
	if row < 0 || row >= len(s.Rows) {
		return ""
	}
	return s.Rows[row][header]
}

// Column returns every cell value under the given header, in row order.
func (s *Sheet) Column(header string) []string {
	values := make([]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		values = append(values, row[header])
	}
	return values
}

// ColumnAt is Column by index into Headers.
func (s *Sheet) ColumnAt(i int) []string {
	if i < 0 || i >= len(s.Headers) {
		return nil
	}
	return s.Column(s.Headers[i])
}

// FirstColumn returns the values of the leftmost column. Used by orientation
// probing, where the first column may hold the period labels instead of the
// header row.
func (s *Sheet) FirstColumn() []string {
	if len(s.Headers) == 0 {
		return nil
	}
	return s.Column(s.Headers[0])
}

// SampleRows returns up to n rows as raw string slices aligned with Headers,
// for preview rendering and format probing.
func (s *Sheet) SampleRows(n int) [][]string {
	if n > len(s.Rows) {
		n = len(s.Rows)
	}
	out := make([][]string, 0, n)
	for r := 0; r < n; r++ {
		cells := make([]string, len(s.Headers))
		for i, h := range s.Headers {
			cells[i] = s.Rows[r][h]
		}
		out = append(out, cells)
	}
	return out
}

// Transpose flips the sheet so that the current header row becomes the first
// column and vice versa. Applying it twice restores the original arrangement
// exactly; the normalizer relies on that when the user toggles orientation.
func (s *Sheet) Transpose() *Sheet {
	grid := s.toGrid()
	if len(grid) == 0 {
		return &Sheet{}
	}

	rows := len(grid)
	cols := len(grid[0])
	flipped := make([][]string, cols)
	for c := 0; c < cols; c++ {
		flipped[c] = make([]string, rows)
		for r := 0; r < rows; r++ {
			flipped[c][r] = grid[r][c]
		}
	}
	return fromGrid(flipped)
}

// toGrid converts back to a rectangular matrix, header row first.
func (s *Sheet) toGrid() [][]string {
	if len(s.Headers) == 0 {
		return nil
	}
	grid := make([][]string, 0, len(s.Rows)+1)
	grid = append(grid, append([]string(nil), s.Headers...))
	for r := range s.Rows {
		cells := make([]string, len(s.Headers))
		for i, h := range s.Headers {
			cells[i] = s.Rows[r][h]
		}
		grid = append(grid, cells)
	}
	return grid
}

// fromGrid builds a sheet from a rectangular matrix without trimming.
// Trimming only happens once, when the file is first materialized, so that
// transpose stays a pure involution.
func fromGrid(grid [][]string) *Sheet {
	if len(grid) == 0 {
		return &Sheet{}
	}
	sh := &Sheet{Headers: append([]string(nil), grid[0]...)}
	for _, cells := range grid[1:] {
		row := make(map[string]string, len(sh.Headers))
		for i, h := range sh.Headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		sh.Rows = append(sh.Rows, row)
	}
	return sh
}

// FromRecords builds a sheet from raw CSV records. Records are padded to a
// rectangle, then empty leading/trailing rows and columns are trimmed before
// the first surviving row is promoted to the header.
func FromRecords(records [][]string) (*Sheet, error) {
	grid := pad(records)
	grid = trim(grid)
	if len(grid) == 0 {
		return nil, ErrEmptyFile
	}
	if len(grid) == 1 {
		return nil, ErrNoData
	}
	for i := range grid[0] {
		grid[0][i] = strings.TrimSpace(grid[0][i])
	}
	return fromGrid(grid), nil
}

// ParseCSV materializes a sheet from CSV bytes using the given delimiter.
// Input bytes are normalized first: UTF-8 BOM stripped, non-UTF-8 content
// decoded as Latin-1.
func ParseCSV(data []byte, separator rune) (*Sheet, error) {
	data = NormalizeBytes(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = separator
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		records = append(records, record)
	}
	return FromRecords(records)
}

// ParseExcel materializes a sheet from the first worksheet of an XLSX file.
func ParseExcel(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return FromRecords(rows)
}

// FirstLine returns the first non-empty text line of the file, which is what
// separator detection samples. The BOM is stripped so the first header cell
// is not polluted.
func FirstLine(data []byte) string {
	data = NormalizeBytes(data)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// NormalizeBytes strips a UTF-8 BOM and falls back to Latin-1 decoding when
// the payload is not valid UTF-8. Bank and ERP exports routinely ship either.
func NormalizeBytes(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}
	if utf8.Valid(data) {
		return data
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}

func pad(records [][]string) [][]string {
	width := 0
	for _, r := range records {
		if len(r) > width {
			width = len(r)
		}
	}
	grid := make([][]string, 0, len(records))
	for _, r := range records {
		cells := make([]string, width)
		copy(cells, r)
		grid = append(grid, cells)
	}
	return grid
}

// trim drops empty leading/trailing rows and columns.
func trim(grid [][]string) [][]string {
	rowEmpty := func(r []string) bool {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				return false
			}
		}
		return true
	}

	for len(grid) > 0 && rowEmpty(grid[0]) {
		grid = grid[1:]
	}
	for len(grid) > 0 && rowEmpty(grid[len(grid)-1]) {
		grid = grid[:len(grid)-1]
	}
	if len(grid) == 0 {
		return grid
	}

	width := len(grid[0])
	colEmpty := func(c int) bool {
		for _, r := range grid {
			if c < len(r) && strings.TrimSpace(r[c]) != "" {
				return false
			}
		}
		return true
	}

	start, end := 0, width
	for start < end && colEmpty(start) {
		start++
	}
	for end > start && colEmpty(end-1) {
		end--
	}
	if start == 0 && end == width {
		return grid
	}
	for i, r := range grid {
		grid[i] = r[start:end]
	}
	return grid
}
