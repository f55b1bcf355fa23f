// Package workday scrapes job boards hosted on Workday's applicant
// tracking system (myworkdayjobs.com and white-label deployments).
package workday

import "time"

// Selectors locate job data inside Workday's rendered markup. The
// data-automation-id attributes are stable across Workday tenants; the item
// class is the one generated class that has held for years.
type Selectors struct {
	JobList       string
	JobItem       string
	JobTitle      string
	Location      string
	MultiLocation string
	Subtitle      string
	PostedOn      string
	Pagination    string
	NextButton    string
	Description   string
	JobID         string
	DetailTitle   string
}

// DefaultSelectors returns the selector set for stock Workday deployments.
func DefaultSelectors() Selectors {
	return Selectors{
		JobList:       "ul[data-automation-id='jobResults']",
		JobItem:       "li[class='css-1q2dra3']",
		JobTitle:      "a[data-automation-id='jobTitle']",
		Location:      "dd[data-automation-id='locations']",
		MultiLocation: "dl > dd[data-automation-id='promptOption-location']",
		Subtitle:      "span[data-automation-id='subtitle']",
		PostedOn:      "dd[data-automation-id='postedOn']",
		Pagination:    "nav[aria-label='pagination']",
		NextButton:    "button[aria-label='next']",
		Description:   "div[data-automation-id='jobPostingDescription']",
		JobID:         "span[data-automation-id='jobPostingJobId']",
		DetailTitle:   "h1[data-automation-id='jobPostingHeader']",
	}
}

// Config tunes one scraper instance. Zero-value fields fall back to the
// platform defaults, so callers only set what they need to override.
type Config struct {
	Selectors Selectors
}

// withDefaults merges c over the platform defaults, caller values winning.
func (c Config) withDefaults() Config {
	defaults := DefaultSelectors()
	s := &c.Selectors
	if s.JobList == "" {
		s.JobList = defaults.JobList
	}
	if s.JobItem == "" {
		s.JobItem = defaults.JobItem
	}
	if s.JobTitle == "" {
		s.JobTitle = defaults.JobTitle
	}
	if s.Location == "" {
		s.Location = defaults.Location
	}
	if s.MultiLocation == "" {
		s.MultiLocation = defaults.MultiLocation
	}
	if s.Subtitle == "" {
		s.Subtitle = defaults.Subtitle
	}
	if s.PostedOn == "" {
		s.PostedOn = defaults.PostedOn
	}
	if s.Pagination == "" {
		s.Pagination = defaults.Pagination
	}
	if s.NextButton == "" {
		s.NextButton = defaults.NextButton
	}
	if s.Description == "" {
		s.Description = defaults.Description
	}
	if s.JobID == "" {
		s.JobID = defaults.JobID
	}
	if s.DetailTitle == "" {
		s.DetailTitle = defaults.DetailTitle
	}
	return c
}

const (
	// listWaitTimeout bounds the initial wait for the job list to render.
	listWaitTimeout = 60 * time.Second
	// descriptionWaitTimeout bounds the wait for a detail page's body.
	descriptionWaitTimeout = 10 * time.Second
	// paginationProbeTimeout is how long to look for pagination controls
	// before assuming the board uses infinite scroll.
	paginationProbeTimeout = 5 * time.Second
	// interPageDelay spaces pagination clicks apart.
	interPageDelay = 500 * time.Millisecond
)
