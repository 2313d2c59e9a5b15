package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"train-callbacks/core/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrRunExists is returned when a run ID is already taken
	ErrRunExists = errors.New("run already exists")
	// ErrRunNotFound is returned when a run ID is unknown
	ErrRunNotFound = errors.New("run not found")
)

const pqUniqueViolation = "23505"

// RunRepository handles database operations for runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun creates a new run in the database
func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	runID := uuid.New()
	if run.ID != "" {
		var err error
		runID, err = uuid.Parse(run.ID)
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	query := `
		INSERT INTO runs (id, name, log_dir, status, epochs, spec_yaml, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(ctx, query,
		runID,
		run.Name,
		run.LogDir,
		run.Status,
		run.Epochs,
		run.SpecYAML,
		now,
		now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: %s", ErrRunExists, runID)
		}
		return err
	}

	if err := createRunEventTx(ctx, tx, runID.String(), nil, run.Status, "run_created", nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	run.ID = runID.String()
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, name, log_dir, status, epochs, spec_yaml, started_at, completed_at, created_at, updated_at
		FROM runs
		WHERE id = $1
	`

	var run models.Run
	var startedAt sql.NullTime
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Name,
		&run.LogDir,
		&run.Status,
		&run.Epochs,
		&run.SpecYAML,
		&startedAt,
		&completedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// UpdateRunStatus moves a run to a new status and records the transition
func (r *RunRepository) UpdateRunStatus(
	ctx context.Context,
	runID string,
	fromStatus, toStatus models.RunStatus,
	reason string,
	meta map[string]interface{},
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	var startedAt, completedAt *time.Time
	switch toStatus {
	case models.RunStatusRunning:
		startedAt = &now
	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
		completedAt = &now
	}

	updateQuery := `
		UPDATE runs
		SET status = $1, updated_at = $2, started_at = COALESCE(started_at, $3), completed_at = $4
		WHERE id = $5
	`
	res, err := tx.ExecContext(ctx, updateQuery, toStatus, now, startedAt, completedAt, runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err := createRunEventTx(ctx, tx, runID, &fromStatus, toStatus, reason, meta); err != nil {
		return err
	}
	return tx.Commit()
}

func createRunEventTx(
	ctx context.Context,
	tx *sql.Tx,
	runID string,
	fromStatus *models.RunStatus,
	toStatus models.RunStatus,
	reason string,
	meta map[string]interface{},
) error {
	query := `
		INSERT INTO run_events (run_id, from_status, to_status, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5)
	`

	var fromStatusStr *string
	if fromStatus != nil {
		s := string(*fromStatus)
		fromStatusStr = &s
	}

	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, query, runID, fromStatusStr, toStatus, reason, metaJSON)
	return err
}

func marshalMeta(meta map[string]interface{}) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta: %w", err)
	}
	return string(data), nil
}
