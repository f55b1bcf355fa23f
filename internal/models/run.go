package models

import "time"

// RunStage identifies a phase of a board run for progress reporting.
type RunStage string

const (
	StageListing   RunStage = "listing"   // paginating/scrolling the list view
	StageEnriching RunStage = "enriching" // structured location parsing
	StageDetails   RunStage = "details"   // parallel detail-page fetches
	StageFiltering RunStage = "filtering" // dedupe and staleness drop
	StagePersist   RunStage = "persist"   // store upsert / CSV export
)

// ProgressFunc receives stage transitions and per-stage counts.
// done == total signals stage completion; total may be 0 when unknown.
type ProgressFunc func(stage RunStage, done, total int)

// RunResult summarizes a single board run.
type RunResult struct {
	ID       string        `json:"id"` // run_{uuid}
	Board    string        `json:"board"`
	Platform string        `json:"platform"`
	Found    int           `json:"found"`    // summaries extracted
	Kept     int           `json:"kept"`     // after dedupe + staleness filter
	Inserted int           `json:"inserted"` // store successes
	Failed   int           `json:"failed"`   // store failures
	Failures []string      `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// FleetSummary aggregates results across all boards of a fleet run.
type FleetSummary struct {
	Boards    int           `json:"boards"`
	Succeeded int           `json:"succeeded"`
	Errored   int           `json:"errored"`
	Jobs      int           `json:"jobs"`
	Inserted  int           `json:"inserted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
