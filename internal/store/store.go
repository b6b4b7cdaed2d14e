package store

import (
	"io"

	"github.com/cwbudde/reconmetrics/internal/eval"
)

// Store defines report persistence. Implementations must be safe for
// concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a report or artifact doesn't exist
//   - Return a *ValidationError for reports that fail ValidateReport
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveReport atomically writes report.json for report.ID, overwriting
	// any previous version.
	SaveReport(report *eval.Report) error

	// LoadReport retrieves a report by ID
	LoadReport(id string) (*eval.Report, error)

	// ListReports returns metadata for all stored reports, newest first
	ListReports() ([]ReportInfo, error)

	// DeleteReport removes the report and all of its artifacts:
	//   - report.json
	//   - trace.jsonl
	//   - diff.png and any other saved artifact
	DeleteReport(id string) error

	// SaveArtifact stores a named binary file next to the report
	SaveArtifact(id, name string, r io.Reader) error

	// OpenArtifact opens a named artifact for reading
	OpenArtifact(id, name string) (io.ReadCloser, error)

	// CreateTrace starts a new metric trace for a report, replacing any
	// existing one
	CreateTrace(id string) (*TraceWriter, error)

	// OpenTrace opens the metric trace of a report for reading
	OpenTrace(id string) (*TraceReader, error)
}

// ErrNotFound is returned when a requested report or artifact does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing report.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "report not found: " + e.ID
	}
	return "report not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
