package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"train-callbacks/core/models"
)

// SummaryRepository stores summary records in Postgres. It buffers records
// until Flush, which writes them in a single transaction, so it can serve
// as a summary channel.
type SummaryRepository struct {
	db *DB

	mu      sync.Mutex
	pending []models.SummaryRecord
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// AddSummary buffers a record until the next Flush
func (r *SummaryRepository) AddSummary(ctx context.Context, rec models.SummaryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, rec)
	return nil
}

// Pending returns the number of buffered records
func (r *SummaryRepository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes buffered records. On failure the records stay buffered.
func (r *SummaryRepository) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_summaries (run_id, epoch, step, scalars, wall_time)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range r.pending {
		scalars, err := json.Marshal(rec.Scalars)
		if err != nil {
			return fmt.Errorf("failed to marshal scalars: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.RunID, rec.Epoch, rec.Step, string(scalars), rec.WallTime); err != nil {
			return fmt.Errorf("failed to insert summary for epoch %d: %w", rec.Epoch, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.pending = r.pending[:0]
	return nil
}

// ListSummaries returns the most recent limit summaries of a run, oldest first
func (r *SummaryRepository) ListSummaries(ctx context.Context, runID string, limit int) ([]models.SummaryRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT run_id, epoch, step, scalars, wall_time
		FROM (
			SELECT id, run_id, epoch, step, scalars, wall_time
			FROM run_summaries
			WHERE run_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SummaryRecord
	for rows.Next() {
		var rec models.SummaryRecord
		var scalars string
		if err := rows.Scan(&rec.RunID, &rec.Epoch, &rec.Step, &scalars, &rec.WallTime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scalars), &rec.Scalars); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
