package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cwbudde/reconmetrics/internal/eval"
)

const (
	reportFile = "report.json"
	traceFile  = "trace.jsonl"

	// DiffArtifact is the name of the false-color difference image
	DiffArtifact = "diff.png"
)

// FSStore implements Store on the filesystem. Reports are stored as
// <baseDir>/reports/<id>/report.json, with their artifacts alongside.
//
// Writes go through a temp file and rename, so concurrent readers never
// observe a partial report.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store
func (s *FSStore) BaseDir() string {
	return s.baseDir
}

func (s *FSStore) reportsDir() string {
	return filepath.Join(s.baseDir, "reports")
}

func (s *FSStore) reportDir(id string) string {
	return filepath.Join(s.reportsDir(), id)
}

// ReportDir returns the directory holding a report and its artifacts
func (s *FSStore) ReportDir(id string) string {
	return s.reportDir(id)
}

func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("report ID cannot be empty")
	}
	if !ValidID(id) {
		return &ValidationError{Field: "ID", Reason: "contains invalid characters"}
	}
	return nil
}

func checkArtifactName(name string) error {
	if name == "" || name == reportFile || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return &ValidationError{Field: "artifact", Reason: fmt.Sprintf("invalid name %q", name)}
	}
	return nil
}

// writeAtomic writes data to path through a temp file in the same directory
func writeAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SaveReport validates and atomically saves a report.
func (s *FSStore) SaveReport(report *eval.Report) error {
	if err := ValidateReport(report); err != nil {
		return err
	}

	dir := s.reportDir(report.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	path := filepath.Join(dir, reportFile)
	if err := writeAtomic(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	slog.Debug("Report saved", "id", report.ID, "path", path)
	return nil
}

// LoadReport retrieves a report by ID.
func (s *FSStore) LoadReport(id string) (*eval.Report, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	path := filepath.Join(s.reportDir(id), reportFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report eval.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to deserialize report: %w", err)
	}

	slog.Debug("Report loaded", "id", id, "path", path)
	return &report, nil
}

// ListReports returns metadata for all stored reports, newest first.
// Directories without a readable report.json are skipped.
func (s *FSStore) ListReports() ([]ReportInfo, error) {
	entries, err := os.ReadDir(s.reportsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return []ReportInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	infos := make([]ReportInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}

		report, err := s.LoadReport(entry.Name())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("Failed to load report for listing", "id", entry.Name(), "error", err)
			}
			continue
		}

		info := Info(report)
		info.SizeBytes = dirSize(s.reportDir(entry.Name()))
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	slog.Debug("Listed reports", "count", len(infos))
	return infos, nil
}

// DeleteReport removes the report directory with all artifacts.
func (s *FSStore) DeleteReport(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	dir := s.reportDir(id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat report directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove report directory: %w", err)
	}

	slog.Debug("Report deleted", "id", id, "path", dir)
	return nil
}

// SaveArtifact stores a named file in the report directory. The report
// itself does not need to exist yet.
func (s *FSStore) SaveArtifact(id, name string, r io.Reader) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := checkArtifactName(name); err != nil {
		return err
	}

	dir := s.reportDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, name), r); err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", name, err)
	}
	return nil
}

// OpenArtifact opens a named artifact of a report.
func (s *FSStore) OpenArtifact(id, name string) (io.ReadCloser, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := checkArtifactName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.reportDir(id), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{ID: id + "/" + name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// CreateTrace starts a new trace.jsonl for a report.
func (s *FSStore) CreateTrace(id string) (*TraceWriter, error) {
	return NewTraceWriter(s.baseDir, id, false)
}

// OpenTrace opens the trace.jsonl of a report.
func (s *FSStore) OpenTrace(id string) (*TraceReader, error) {
	return NewTraceReader(s.baseDir, id)
}

// dirSize sums the sizes of all regular files below path
func dirSize(path string) int64 {
	var size int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
