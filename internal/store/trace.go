package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one metric value recorded during an evaluation.
// Each entry is serialized as a JSON line in trace.jsonl.
type TraceEntry struct {
	// Metric is the metric name, e.g. "psnr" or "multiscale"
	Metric string `json:"metric"`

	// Value is nil for non-finite values, which JSON cannot represent
	Value *float64 `json:"value"`

	// Infinite and NegInfinite are set instead of Value for +Inf (PSNR of
	// identical images) and -Inf. NaN leaves all three unset.
	Infinite    bool `json:"infinite,omitempty"`
	NegInfinite bool `json:"negInfinite,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewTraceEntry builds an entry for value; Float returns it unchanged,
// including infinities and NaN.
func NewTraceEntry(metric string, value float64) TraceEntry {
	e := TraceEntry{Metric: metric, Timestamp: time.Now()}
	switch {
	case math.IsInf(value, 1):
		e.Infinite = true
	case math.IsInf(value, -1):
		e.NegInfinite = true
	case math.IsNaN(value):
	default:
		e.Value = &value
	}
	return e
}

// Float returns the recorded value, an infinity for the flags and NaN when missing
func (e TraceEntry) Float() float64 {
	switch {
	case e.Infinite:
		return math.Inf(1)
	case e.NegInfinite:
		return math.Inf(-1)
	case e.Value == nil:
		return math.NaN()
	}
	return *e.Value
}

func tracePath(baseDir, id string) string {
	return filepath.Join(baseDir, "reports", id, traceFile)
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates a trace writer at <baseDir>/reports/<id>/trace.jsonl.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, id string, append bool) (*TraceWriter, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	path := tracePath(baseDir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 16*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry. The entry is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered data and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceRecorder buffers metric values while an evaluation runs, before the
// report ID is known. Record matches eval.Observer.
type TraceRecorder struct {
	mu      sync.Mutex
	entries []TraceEntry
}

// Record appends a metric value
func (r *TraceRecorder) Record(metric string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, NewTraceEntry(metric, value))
}

// Entries returns a copy of the recorded entries
func (r *TraceRecorder) Entries() []TraceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEntry(nil), r.entries...)
}

// SaveTrace writes entries as the trace of report id, replacing any
// existing trace.
func SaveTrace(st Store, id string, entries []TraceEntry) error {
	tw, err := st.CreateTrace(id)
	if err != nil {
		return fmt.Errorf("failed to create trace: %w", err)
	}
	for _, e := range entries {
		if err := tw.Write(e); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of a report.
func NewTraceReader(baseDir, id string) (*TraceReader, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	file, err := os.Open(tracePath(baseDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceReader{
		file:    file,
		scanner: bufio.NewScanner(file),
	}, nil
}

// Read returns the next entry, or io.EOF when none are left.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}
