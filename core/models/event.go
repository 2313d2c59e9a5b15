package models

import "time"

// RunEvent represents a state transition event for a training run
type RunEvent struct {
	ID         int64
	RunID      string
	At         time.Time
	FromStatus *RunStatus
	ToStatus   RunStatus
	Reason     string
	MetaJSON   map[string]interface{} // Additional metadata
}

// ArtifactType represents the type of run artifact
type ArtifactType string

const (
	ArtifactTypeCheckpoint ArtifactType = "checkpoint"
	ArtifactTypeSummary    ArtifactType = "summary"
)

// RunArtifact represents a run artifact (checkpoint, summary event file)
type RunArtifact struct {
	ID        string
	RunID     string
	Type      ArtifactType
	URI       string
	Epoch     int
	CreatedAt time.Time
	MetaJSON  map[string]interface{}
}
