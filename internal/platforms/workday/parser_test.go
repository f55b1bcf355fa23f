package workday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate_Relative(t *testing.T) {
	parser := Parser{}

	tests := []struct {
		name     string
		raw      string
		daysAgo  int
		expectOK bool
	}{
		{name: "posted today", raw: "Posted Today", daysAgo: 0, expectOK: true},
		{name: "just posted", raw: "Just Posted", daysAgo: 0, expectOK: true},
		{name: "posted yesterday", raw: "Posted Yesterday", daysAgo: 1, expectOK: true},
		{name: "posted N days ago", raw: "Posted 3 Days Ago", daysAgo: 3, expectOK: true},
		{name: "posted 1 day ago", raw: "posted 1 day ago", daysAgo: 1, expectOK: true},
		{name: "posted 30+ days ago", raw: "Posted 30+ Days Ago", daysAgo: 30, expectOK: true},
		{name: "extra whitespace", raw: "  posted 7 days ago  ", daysAgo: 7, expectOK: true},
		{name: "empty", raw: "", expectOK: false},
		{name: "blank", raw: "   ", expectOK: false},
		{name: "not a date", raw: "Full time", expectOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := parser.ParseDate(tt.raw)
			require.Equal(t, tt.expectOK, ok)
			if !ok {
				return
			}
			expected := startOfDay(time.Now()).AddDate(0, 0, -tt.daysAgo)
			assert.Equal(t, expected, parsed)
		})
	}
}

func TestParseDate_Absolute(t *testing.T) {
	parser := Parser{}

	tests := []struct {
		raw      string
		expected string // ISO
	}{
		{"2024-01-15", "2024-01-15"},
		{"Posted on 2024-01-15", "2024-01-15"},
		{"posted 15 Jan 2024", "2024-01-15"},
		{"15 January 2024", "2024-01-15"},
		{"Jan 15, 2024", "2024-01-15"},
		{"January 15, 2024", "2024-01-15"},
		{"25/12/2024", "2024-12-25"}, // day-first wins the ambiguous formats
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			parsed, ok := parser.ParseDate(tt.raw)
			require.True(t, ok, "expected %q to parse", tt.raw)
			assert.Equal(t, tt.expected, parsed.Format("2006-01-02"))
		})
	}
}

func TestParseDate_Deterministic(t *testing.T) {
	parser := Parser{}
	for _, raw := range []string{"Posted Today", "Posted 5 Days Ago", "2024-06-01", "garbage"} {
		first, okFirst := parser.ParseDate(raw)
		second, okSecond := parser.ParseDate(raw)
		assert.Equal(t, okFirst, okSecond)
		assert.Equal(t, first.Format("2006-01-02"), second.Format("2006-01-02"))
	}
}

func TestParseLocation(t *testing.T) {
	parser := Parser{}

	tests := []struct {
		raw      string
		expected string
	}{
		{"Locations: London, UK", "London, UK"},
		{"locations London, UK", "London, UK"},
		{"Location: Remote", "Remote"},
		{"London, UK", "London, UK"},
		{"  Sydney  ", "Sydney"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parser.ParseLocation(tt.raw), "raw=%q", tt.raw)
	}
}

func TestParseLocation_Idempotent(t *testing.T) {
	parser := Parser{}
	for _, raw := range []string{"Locations: London, UK", "Remote", "", "locations: Tokyo"} {
		once := parser.ParseLocation(raw)
		assert.Equal(t, once, parser.ParseLocation(once))
	}
}

func TestParseJobID(t *testing.T) {
	parser := Parser{}

	tests := []struct {
		raw      string
		expected string
	}{
		{"Job ID: REQ-12345", "12345"},
		{"job id: req12345", "12345"},
		{"REQ-98765", "98765"},
		{"12345", "12345"},
		{"  JR-555  ", "JR-555"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parser.ParseJobID(tt.raw), "raw=%q", tt.raw)
	}
}
