package main

import (
	"context"
	"log"
	"sync"
	"time"

	"train-callbacks/core/models"
)

type statusRecorder interface {
	UpdateRunStatus(ctx context.Context, runID string, fromStatus, toStatus models.RunStatus, reason string, meta map[string]interface{}) error
}

// runState holds the run being trained and mirrors status changes to the
// database when one is configured
type runState struct {
	mu       sync.RWMutex
	run      models.Run
	recorder statusRecorder
}

func newRunState(run models.Run, recorder statusRecorder) *runState {
	return &runState{run: run, recorder: recorder}
}

// CurrentRun returns a copy of the run
func (s *runState) CurrentRun() models.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

func (s *runState) setStatus(ctx context.Context, to models.RunStatus, reason string, meta map[string]interface{}) {
	s.mu.Lock()
	from := s.run.Status
	now := time.Now()
	s.run.Status = to
	s.run.UpdatedAt = now
	switch to {
	case models.RunStatusRunning:
		if s.run.StartedAt == nil {
			s.run.StartedAt = &now
		}
	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
		s.run.CompletedAt = &now
	}
	runID := s.run.ID
	s.mu.Unlock()

	if s.recorder == nil {
		return
	}
	if err := s.recorder.UpdateRunStatus(ctx, runID, from, to, reason, meta); err != nil {
		// The run itself is unaffected
		log.Printf("Failed to record run status %s: %v", to, err)
	}
}
