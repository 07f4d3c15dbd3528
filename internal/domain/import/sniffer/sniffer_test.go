package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSeparator(t *testing.T) {
	tests := []struct {
		name string
		line string
		want rune
	}{
		{"comma separated", "sku,description,01/01/2024,02/01/2024", ','},
		{"semicolon separated", "sku;description;01/01/2024;02/01/2024", ';'},
		{"tab separated", "sku\tdescription\t01/01/2024", '\t'},
		{"pipe separated", "sku|description|01/01/2024", '|'},
		{"leading separator counts", ",a,b,c", ','},
		{"tie resolves to comma", "single-column-header", ','},
		{"semicolon beats comma on count", "a;b;c;d,e", ';'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectSeparator(tt.line))
		})
	}
}

func TestDetectDateFormat(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		want       DateFormat
	}{
		{
			name:       "day beyond 12 disambiguates dmy",
			candidates: []string{"31/12/2023", "15/06/2023"},
			want:       DateDMYSlash,
		},
		{
			name:       "iso dashes",
			candidates: []string{"2023-01-01", "2023-02-01", "2023-03-01"},
			want:       DateYMDDash,
		},
		{
			name:       "month year only",
			candidates: []string{"01/2023", "02/2023", "03/2023"},
			want:       DateMYSlash,
		},
		{
			name:       "ambiguous batch resolves canonically to dmy",
			candidates: []string{"01/02/2023", "03/04/2023"},
			want:       DateDMYSlash,
		},
		{
			name:       "mdy wins when batch demands it",
			candidates: []string{"12/31/2023", "06/15/2023"},
			want:       DateMDYSlash,
		},
		{
			name:       "nothing parses falls back to default",
			candidates: []string{"sku1", "sku2"},
			want:       DefaultDate,
		},
		{
			name:       "empty input falls back to default",
			candidates: nil,
			want:       DefaultDate,
		},
		{
			name:       "non-date noise does not sway the vote",
			candidates: []string{"Material 4711", "31/12/2023", "30/11/2023"},
			want:       DateDMYSlash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDateFormat(tt.candidates))
		})
	}
}

func TestDateFormatExplains(t *testing.T) {
	assert.True(t, DateDMYSlash.Explains("31/12/2023"))
	assert.False(t, DateDMYSlash.Explains("13/31/2023"), "month 31 is not a calendar date")
	assert.False(t, DateMDYSlash.Explains("31/12/2023"), "month 31 under mdy")
	assert.False(t, DateYMDDash.Explains("2023-02-30"), "February 30th does not exist")
	assert.True(t, DateYMDash.Explains("2023-07"))
}

func TestNumberFormatParse(t *testing.T) {
	t.Run("us convention", func(t *testing.T) {
		d, err := NumUS.Parse("1,234.56")
		require.NoError(t, err)
		assert.Equal(t, "1234.56", d.String())
	})

	t.Run("eu convention", func(t *testing.T) {
		d, err := NumEU.Parse("1.234,56")
		require.NoError(t, err)
		assert.Equal(t, "1234.56", d.String())
	})

	t.Run("space grouping", func(t *testing.T) {
		d, err := NumSpaceEU.Parse("1 234,56")
		require.NoError(t, err)
		assert.Equal(t, "1234.56", d.String())
	})

	t.Run("parenthesized negative", func(t *testing.T) {
		d, err := NumUS.Parse("(512.00)")
		require.NoError(t, err)
		assert.Equal(t, "-512", d.String())
	})

	t.Run("currency noise stripped", func(t *testing.T) {
		d, err := NumUS.Parse("$1,500.25")
		require.NoError(t, err)
		assert.Equal(t, "1500.25", d.String())
	})
}

func TestNumberFormatExplains(t *testing.T) {
	t.Run("foreign separator rejects", func(t *testing.T) {
		assert.False(t, NumUS.Explains("1.234,56"), "eu value must not be claimed by us format")
		assert.False(t, NumEU.Explains("1,234.56"))
	})

	t.Run("bad grouping rejects", func(t *testing.T) {
		assert.False(t, NumUS.Explains("1,23.45"))
		assert.False(t, NumUS.Explains("12,3456.00"))
	})

	t.Run("plain integer explained everywhere", func(t *testing.T) {
		assert.True(t, NumUS.Explains("1200"))
		assert.True(t, NumEU.Explains("1200"))
	})
}

func TestDetectNumberFormat(t *testing.T) {
	tests := []struct {
		name    string
		samples []string
		want    NumberFormat
	}{
		{
			name:    "eu thousands and decimal",
			samples: []string{"1.234,56", "2.500,00"},
			want:    NumEU,
		},
		{
			name:    "us thousands and decimal",
			samples: []string{"1,234.56", "12,500.00"},
			want:    NumUS,
		},
		{
			name:    "comma decimals without grouping",
			samples: []string{"12,5", "3,75", "0,25"},
			want:    NumPlainComma,
		},
		{
			name:    "dot decimals without grouping",
			samples: []string{"12.5", "3.75", "0.25"},
			want:    NumPlainDot,
		},
		{
			name:    "grouping in any sample keeps the grouped format",
			samples: []string{"12,5", "1.234,56"},
			want:    NumEU,
		},
		{
			name:    "space grouped",
			samples: []string{"1 234,56", "10 500,00"},
			want:    NumSpaceEU,
		},
		{
			name:    "plain integers default to us",
			samples: []string{"100", "250", "75"},
			want:    DefaultNumber,
		},
		{
			name:    "no digit-bearing samples default",
			samples: []string{"", "n/a"},
			want:    DefaultNumber,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectNumberFormat(tt.samples))
		})
	}
}

func TestProbeOrientation(t *testing.T) {
	t.Run("periods in header row stay put", func(t *testing.T) {
		headers := []string{"SKU", "Description", "01/01/2024", "01/02/2024"}
		firstColumn := []string{"A-1", "A-2", "A-3"}

		got := ProbeOrientation(headers, firstColumn)
		assert.False(t, got.Transposed)
		assert.Equal(t, DateDMYSlash, got.DateFormat)
	})

	t.Run("periods in first column request transpose", func(t *testing.T) {
		headers := []string{"Period", "A-1", "A-2"}
		firstColumn := []string{"2024-01-01", "2024-02-01", "2024-03-01"}

		got := ProbeOrientation(headers, firstColumn)
		assert.True(t, got.Transposed)
		assert.Equal(t, DateYMDDash, got.DateFormat)
	})

	t.Run("tie keeps header row", func(t *testing.T) {
		got := ProbeOrientation([]string{"SKU", "Name"}, []string{"A-1", "A-2"})
		assert.False(t, got.Transposed)
	})
}
