package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"train-callbacks/core/models"
)

// EventRepository handles database operations for run events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetRunEvents retrieves the most recent events of a run
func (r *EventRepository) GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	query := `
		SELECT id, run_id, at, from_status, to_status, reason, meta_json
		FROM run_events
		WHERE run_id = $1
		ORDER BY at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.RunEvent
	for rows.Next() {
		var event models.RunEvent
		var fromStatus sql.NullString
		var metaJSON string

		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.At,
			&fromStatus,
			&event.ToStatus,
			&event.Reason,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if fromStatus.Valid {
			status := models.RunStatus(fromStatus.String)
			event.FromStatus = &status
		}

		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &event.MetaJSON); err != nil {
				return nil, err
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
