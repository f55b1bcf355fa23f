package models

import "time"

// BoardType classifies how a job board relates to its owner.
type BoardType string

const (
	BoardTypeCompany    BoardType = "company"    // a company's own careers site
	BoardTypeAggregator BoardType = "aggregator" // third-party board listing many companies
)

// Company is an employer whose boards are crawled.
type Company struct {
	ID        string    `json:"id"` // co_{uuid}
	Name      string    `json:"name"`
	Sector    string    `json:"sector,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board is one crawlable job board URL tied to a platform implementation.
type Board struct {
	ID          string    `json:"id"` // board_{uuid}
	CompanyID   string    `json:"company_id,omitempty"`
	CompanyName string    `json:"company_name,omitempty"` // joined in on reads
	Type        BoardType `json:"type"`
	Platform    string    `json:"platform"` // registry key, e.g. "workday"
	Link        string    `json:"link"`
	AddedAt     time.Time `json:"added_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
