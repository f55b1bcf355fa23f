package common

import (
	"github.com/google/uuid"
)

// NewCompanyID generates a unique company ID with the "co_" prefix
func NewCompanyID() string {
	return "co_" + uuid.New().String()
}

// NewBoardID generates a unique job board ID with the "board_" prefix
func NewBoardID() string {
	return "board_" + uuid.New().String()
}

// NewListingID generates a unique job listing ID with the "job_" prefix
func NewListingID() string {
	return "job_" + uuid.New().String()
}

// NewRunID generates a unique fleet run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}
