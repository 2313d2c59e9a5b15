package monitoring

import (
	"context"
	"sync"
	"time"

	"train-callbacks/core/callbacks"
)

// Progress is a point-in-time view of a run's training progress
type Progress struct {
	RunID         string        `json:"run_id"`
	Started       bool          `json:"started"`
	StartTime     time.Time     `json:"start_time"`
	ElapsedTime   time.Duration `json:"elapsed"`
	Steps         int64         `json:"steps"`
	Epochs        int           `json:"epochs"`
	LastCost      float64       `json:"last_cost"`
	LastEpochCost float64       `json:"last_epoch_cost"`
	StepsPerSec   float64       `json:"steps_per_sec"`
}

// ProgressMonitor is a training hook that keeps track of steps, epochs and
// loss. Snapshot may be called from other goroutines while training runs.
type ProgressMonitor struct {
	callbacks.Base
	clock callbacks.Clock

	mu            sync.RWMutex
	runID         string
	started       bool
	startTime     time.Time
	steps         int64
	epochs        int
	lastCost      float64
	epochCostSum  float64
	epochSteps    int64
	lastEpochCost float64
}

// NewProgressMonitor creates a new progress monitor
func NewProgressMonitor(clock callbacks.Clock) *ProgressMonitor {
	if clock == nil {
		clock = callbacks.SystemClock()
	}
	return &ProgressMonitor{clock: clock}
}

// BeforeTrain starts the monitor
func (pm *ProgressMonitor) BeforeTrain(ctx context.Context, tc *callbacks.TrainContext) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.runID = tc.RunID
	pm.started = true
	pm.startTime = pm.clock.Now()
	return nil
}

// TriggerStep records the step's cost
func (pm *ProgressMonitor) TriggerStep(ctx context.Context, inputs callbacks.Feed, outputs []any, cost float64) error {
	pm.mu.Lock()
	pm.steps++
	pm.epochSteps++
	pm.lastCost = cost
	pm.epochCostSum += cost
	pm.mu.Unlock()
	return nil
}

// TriggerEpoch closes the epoch's mean cost
func (pm *ProgressMonitor) TriggerEpoch(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.epochs++
	if pm.epochSteps > 0 {
		pm.lastEpochCost = pm.epochCostSum / float64(pm.epochSteps)
	}
	pm.epochCostSum = 0
	pm.epochSteps = 0
	return nil
}

// Snapshot returns the current progress
func (pm *ProgressMonitor) Snapshot() Progress {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	p := Progress{
		RunID:         pm.runID,
		Started:       pm.started,
		StartTime:     pm.startTime,
		Steps:         pm.steps,
		Epochs:        pm.epochs,
		LastCost:      pm.lastCost,
		LastEpochCost: pm.lastEpochCost,
	}
	if pm.started {
		p.ElapsedTime = pm.clock.Now().Sub(pm.startTime)
		if secs := p.ElapsedTime.Seconds(); secs > 0 {
			p.StepsPerSec = float64(pm.steps) / secs
		}
	}
	return p
}
