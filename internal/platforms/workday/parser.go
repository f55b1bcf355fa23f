package workday

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parser normalizes Workday's date, location and job ID text. Every method
// is total: text that cannot be normalized yields a zero value.
type Parser struct{}

var (
	daysAgoPattern     = regexp.MustCompile(`posted\s+(\d+)\s+days?\s+ago`)
	daysAgoPlusPattern = regexp.MustCompile(`posted\s*(\d+)\+\s*days?\s*ago`)
	locationsPrefix    = regexp.MustCompile(`(?i)^\s*locations?\s*:?\s*`)
	jobIDLabel         = regexp.MustCompile(`(?i)^job\s*id\s*:?\s*`)
	requisitionPrefix  = regexp.MustCompile(`(?i)^req-?`)
)

// absoluteDateLayouts are tried in order against date text that is not
// relative ("posted N days ago"). Day-first formats come before month-first
// because Workday tenants outside the US dominate the ambiguous cases.
var absoluteDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate converts Workday posted-on text to a date.
//
//	"Posted Today"          -> today
//	"Posted Yesterday"      -> today - 1 day
//	"Posted 3 Days Ago"     -> today - 3 days
//	"Posted 30+ Days Ago"   -> today - 30 days
//	"Posted on 2024-01-15"  -> 2024-01-15
//
// ok is false when the text is not recognizably a date.
func (Parser) ParseDate(raw string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false
	}
	lower := strings.ToLower(text)

	if after, found := strings.CutPrefix(lower, "posted on"); found {
		lower = strings.TrimSpace(after)
		text = strings.TrimSpace(text[len(text)-len(lower):])
	}

	today := startOfDay(time.Now())

	if strings.Contains(lower, "posted today") || strings.Contains(lower, "just posted") {
		return today, true
	}
	if strings.Contains(lower, "posted yesterday") {
		return today.AddDate(0, 0, -1), true
	}

	if m := daysAgoPattern.FindStringSubmatch(lower); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			return today.AddDate(0, 0, -days), true
		}
	}
	if m := daysAgoPlusPattern.FindStringSubmatch(lower); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			return today.AddDate(0, 0, -days), true
		}
	}

	// Absolute dates keep their original casing; month-name layouts are
	// case-sensitive in time.Parse
	if strings.HasPrefix(lower, "posted ") {
		text = strings.TrimSpace(text[len("posted "):])
	}
	for _, layout := range absoluteDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseLocation strips Workday's "Locations:" label from location text.
func (Parser) ParseLocation(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return strings.TrimSpace(locationsPrefix.ReplaceAllString(raw, ""))
}

// ParseJobID strips the "Job ID:" label and the REQ requisition prefix, so
// "Job ID: REQ-12345" reduces to "12345".
func (Parser) ParseJobID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}
	id = jobIDLabel.ReplaceAllString(id, "")
	id = requisitionPrefix.ReplaceAllString(id, "")
	return strings.TrimSpace(id)
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
