package models

import "time"

// Run represents a single training run driven by the callback layer
type Run struct {
	ID          string
	Name        string
	LogDir      string
	Status      RunStatus
	Epochs      int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
	SpecYAML    string // Original spec for replay/debug
}

// RunStatus represents the current status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunSpec is the parsed form of a run specification
type RunSpec struct {
	Name         string
	LogDir       string
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
	Samples      int
	Resume       bool
	Callbacks    CallbackSpec
	SpecYAML     string
}

// CallbackSpec configures the hooks attached to a run
type CallbackSpec struct {
	Summary  SummarySpec
	Saver    *SaverSpec
	Cost     *CostSpec
	Progress bool
}

// SummarySpec configures the summary sink
type SummarySpec struct {
	Database bool // Mirror summaries into Postgres
}

// SaverSpec configures periodic checkpointing
type SaverSpec struct {
	Period    int
	MaxToKeep int
}

// CostSpec configures running cost accounting
type CostSpec struct {
	Provider     Provider
	InstanceType string
	Region       string
	Count        int
	Spot         bool
	PricePerHour float64 // Static price; zero means resolve from provider
	BudgetUSD    float64 // Zero disables budget enforcement
}
