package models

import (
	"strings"
	"time"
)

// FieldUnavailable marks a detail field that could not be extracted from the
// rendered page. Records carrying it are still persisted.
const FieldUnavailable = "N/A"

// Summary is one job row extracted from a listing page before its detail
// page has been visited.
type Summary struct {
	Title          string     `json:"title"`
	DetailURL      string     `json:"detail_url"`
	LocationRaw    string     `json:"location_raw"`
	Location       string     `json:"location_parsed"`
	DatePostedRaw  string     `json:"date_posted_raw"`
	DatePosted     *time.Time `json:"date_posted_parsed,omitempty"`
	LocationParsed *Location  `json:"location_parsed_intelligent,omitempty"`
}

// Valid reports whether the summary carries enough identity to be worth a
// detail fetch. Rows without a title or resolvable URL are noise from
// partially rendered list items.
func (s Summary) Valid() bool {
	return s.Title != "" && s.Title != FieldUnavailable &&
		s.DetailURL != "" && s.DetailURL != FieldUnavailable
}

// Details holds fields extracted from a job's own page. Every field except
// URL defaults to FieldUnavailable so a timed-out page still yields a record.
type Details struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	JobID       string `json:"job_id"`
	PageTitle   string `json:"detail_page_title"`
}

// NewDetails returns a Details with extraction defaults for url.
func NewDetails(url string) Details {
	return Details{
		URL:         url,
		Description: FieldUnavailable,
		JobID:       FieldUnavailable,
		PageTitle:   FieldUnavailable,
	}
}

// Location is a structured geography for a raw location string.
// Confidence is the parser's own estimate in [0,1].
type Location struct {
	City       string  `json:"city"`
	Country    string  `json:"country"`
	Region     string  `json:"region"`
	Confidence float64 `json:"confidence"`
}

// UnknownLocation is the zero-confidence placeholder used when structured
// parsing is disabled or failed entirely.
func UnknownLocation() Location {
	return Location{City: "Unknown", Country: "Unknown", Region: "Unknown", Confidence: 0.0}
}

// Listing is the merged record for one job: summary fields, detail fields
// and the owning company. Extra platform-specific values that have no
// dedicated column travel in Extras.
type Listing struct {
	Title         string            `json:"title"`
	CompanyName   string            `json:"company_name"`
	URL           string            `json:"url"`
	LocationRaw   string            `json:"location_raw"`
	Location      string            `json:"location"`
	City          string            `json:"city,omitempty"`
	Country       string            `json:"country,omitempty"`
	Region        string            `json:"region,omitempty"`
	Description   string            `json:"description"`
	JobID         string            `json:"job_id"`
	DatePostedRaw string            `json:"date_posted_raw"`
	DatePosted    *time.Time        `json:"date_posted,omitempty"`
	Extras        map[string]string `json:"extras,omitempty"`
}

// MergeListing combines a summary, its detail fetch and the company name
// into one Listing. Detail values win over summary values where both exist.
func MergeListing(companyName string, s Summary, d Details) Listing {
	l := Listing{
		Title:         s.Title,
		CompanyName:   companyName,
		URL:           s.DetailURL,
		LocationRaw:   s.LocationRaw,
		Location:      s.Location,
		Description:   d.Description,
		JobID:         d.JobID,
		DatePostedRaw: s.DatePostedRaw,
		DatePosted:    s.DatePosted,
		Extras:        map[string]string{},
	}
	if d.URL != "" && d.URL != FieldUnavailable {
		l.URL = d.URL
	}
	if d.PageTitle != "" && d.PageTitle != FieldUnavailable {
		l.Extras["detail_page_title"] = d.PageTitle
	}
	if s.LocationParsed != nil {
		l.City = s.LocationParsed.City
		l.Country = s.LocationParsed.Country
		l.Region = s.LocationParsed.Region
	}
	return l
}

// Stale reports whether the raw posted-on text marks the posting as older
// than the platform keeps precise dates for ("posted 30+ days ago").
func (l Listing) Stale() bool {
	return strings.Contains(strings.ToLower(l.DatePostedRaw), "posted 30+ days ago")
}
