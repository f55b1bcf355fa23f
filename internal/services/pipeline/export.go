package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/karanbh01/role-aggr/internal/models"
)

var csvHeader = []string{
	"title", "company", "location", "city", "country", "region",
	"link", "job_id", "date_posted", "description",
}

// AppendCSV appends listings to path, writing the header only when the file
// is new or empty. Returns the number of rows written.
func AppendCSV(path string, listings []models.Listing) (int, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return 0, fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	written := 0
	for _, l := range listings {
		datePosted := ""
		if l.DatePosted != nil {
			datePosted = l.DatePosted.Format("2006-01-02")
		}
		row := []string{
			l.Title, l.CompanyName, l.Location, l.City, l.Country, l.Region,
			l.URL, l.JobID, datePosted, l.Description,
		}
		if err := writer.Write(row); err != nil {
			return written, fmt.Errorf("failed to write CSV row: %w", err)
		}
		written++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return written, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return written, nil
}
