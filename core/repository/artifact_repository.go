package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"train-callbacks/core/models"

	"github.com/google/uuid"
)

// ArtifactRepository handles database operations for run artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetRunArtifacts retrieves artifacts for a run, newest first
func (r *ArtifactRepository) GetRunArtifacts(
	ctx context.Context,
	runID string,
	artifactType *models.ArtifactType,
) ([]models.RunArtifact, error) {
	query := `
		SELECT id, run_id, type, uri, epoch, created_at, meta_json
		FROM run_artifacts
		WHERE run_id = $1
	`
	args := []interface{}{runID}
	argIndex := 2

	if artifactType != nil {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, *artifactType)
	}

	query += " ORDER BY epoch DESC, created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.RunArtifact
	for rows.Next() {
		var artifact models.RunArtifact
		var metaJSON string

		err := rows.Scan(
			&artifact.ID,
			&artifact.RunID,
			&artifact.Type,
			&artifact.URI,
			&artifact.Epoch,
			&artifact.CreatedAt,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &artifact.MetaJSON); err != nil {
				return nil, err
			}
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// CreateArtifact creates a new artifact record
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, artifact *models.RunArtifact) error {
	if artifact.ID == "" {
		artifact.ID = uuid.New().String()
	}

	metaJSON, err := marshalMeta(artifact.MetaJSON)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO run_artifacts (id, run_id, type, uri, epoch, meta_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err = r.db.ExecContext(ctx, query,
		artifact.ID,
		artifact.RunID,
		artifact.Type,
		artifact.URI,
		artifact.Epoch,
		metaJSON,
	)
	return err
}
