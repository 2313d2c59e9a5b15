package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"train-callbacks/core/models"
)

const (
	lineKindHeader  = "header"
	lineKindSummary = "summary"
)

// eventLine is one line of a summary event file
type eventLine struct {
	Kind    string                 `json:"kind"`
	Header  map[string]interface{} `json:"header,omitempty"`
	Summary *models.SummaryRecord  `json:"summary,omitempty"`
}

// SummaryFile is a buffered JSON-lines summary event file. Records become
// visible to readers only after Flush.
type SummaryFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// SummaryFilePath returns the event file path for a run
func SummaryFilePath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("events.%s.jsonl", runID))
}

// OpenSummaryFile creates (or appends to) the event file of a run
func OpenSummaryFile(dir, runID string) (*SummaryFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create summary dir: %w", err)
	}

	path := SummaryFilePath(dir, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary file: %w", err)
	}

	w := bufio.NewWriter(f)
	return &SummaryFile{
		path: path,
		f:    f,
		w:    w,
		enc:  json.NewEncoder(w),
	}, nil
}

// Path returns the file path
func (s *SummaryFile) Path() string {
	return s.path
}

// WriteHeader appends a header line describing the run
func (s *SummaryFile) WriteHeader(meta map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return os.ErrClosed
	}
	return s.enc.Encode(eventLine{Kind: lineKindHeader, Header: meta})
}

// AddSummary buffers a summary record
func (s *SummaryFile) AddSummary(ctx context.Context, rec models.SummaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return os.ErrClosed
	}
	if rec.WallTime.IsZero() {
		rec.WallTime = time.Now()
	}
	return s.enc.Encode(eventLine{Kind: lineKindSummary, Summary: &rec})
}

// Flush writes buffered records to disk
func (s *SummaryFile) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return os.ErrClosed
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

// Close flushes and closes the file
func (s *SummaryFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}

// ReadSummaries reads the summary records of an event file in write order.
// Header lines are skipped.
func ReadSummaries(path string) ([]models.SummaryRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []models.SummaryRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line eventLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if line.Kind == lineKindSummary && line.Summary != nil {
			records = append(records, *line.Summary)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// SummaryFileReader lists summaries from a run's event file
type SummaryFileReader struct {
	Path string
}

// ListSummaries returns the most recent limit summaries, oldest first.
// A non-positive limit returns all of them.
func (r SummaryFileReader) ListSummaries(ctx context.Context, runID string, limit int) ([]models.SummaryRecord, error) {
	records, err := ReadSummaries(r.Path)
	if err != nil {
		return nil, err
	}

	filtered := records[:0]
	for _, rec := range records {
		if runID == "" || rec.RunID == runID {
			filtered = append(filtered, rec)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}
