package pipeline

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karanbh01/role-aggr/internal/models"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.csv")
	posted := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	written, err := AppendCSV(path, []models.Listing{
		{
			Title:       "Engineer",
			CompanyName: "Acme",
			Location:    "London, UK",
			City:        "London",
			Country:     "United Kingdom",
			Region:      "Europe",
			URL:         "https://x.example/job/1",
			JobID:       "123",
			DatePosted:  &posted,
			Description: "Build, test, ship",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"Engineer", "Acme", "London, UK", "London", "United Kingdom", "Europe",
		"https://x.example/job/1", "123", "2024-06-01", "Build, test, ship",
	}, rows[1])
}

func TestAppendCSV_AppendsWithoutRepeatingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.csv")

	_, err := AppendCSV(path, []models.Listing{{Title: "First", CompanyName: "Acme", URL: "https://x.example/1"}})
	require.NoError(t, err)
	_, err = AppendCSV(path, []models.Listing{{Title: "Second", CompanyName: "Acme", URL: "https://x.example/2"}})
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 3, "one header, two data rows")
	assert.Equal(t, "First", rows[1][0])
	assert.Equal(t, "Second", rows[2][0])
}

func TestAppendCSV_NilDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.csv")

	_, err := AppendCSV(path, []models.Listing{{Title: "Undated", CompanyName: "Acme", URL: "https://x.example/1"}})
	require.NoError(t, err)

	rows := readCSV(t, path)
	assert.Empty(t, rows[1][8], "missing dates export as empty, not zero time")
}
