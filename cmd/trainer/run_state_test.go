package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-callbacks/core/models"
)

type transition struct {
	from, to models.RunStatus
	reason   string
}

type fakeRecorder struct {
	transitions []transition
	err         error
}

func (f *fakeRecorder) UpdateRunStatus(ctx context.Context, runID string, from, to models.RunStatus, reason string, meta map[string]interface{}) error {
	f.transitions = append(f.transitions, transition{from: from, to: to, reason: reason})
	return f.err
}

func TestRunState_Transitions(t *testing.T) {
	rec := &fakeRecorder{}
	state := newRunState(models.Run{ID: "run-1", Status: models.RunStatusPending}, rec)

	state.setStatus(context.Background(), models.RunStatusRunning, "training_started", nil)
	run := state.CurrentRun()
	assert.Equal(t, models.RunStatusRunning, run.Status)
	require.NotNil(t, run.StartedAt)
	assert.Nil(t, run.CompletedAt)

	state.setStatus(context.Background(), models.RunStatusCompleted, "training_completed", nil)
	run = state.CurrentRun()
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)

	assert.Equal(t, []transition{
		{from: models.RunStatusPending, to: models.RunStatusRunning, reason: "training_started"},
		{from: models.RunStatusRunning, to: models.RunStatusCompleted, reason: "training_completed"},
	}, rec.transitions)
}

func TestRunState_RecorderFailureKeepsStatus(t *testing.T) {
	state := newRunState(models.Run{ID: "run-1", Status: models.RunStatusPending}, &fakeRecorder{err: errors.New("db down")})

	state.setStatus(context.Background(), models.RunStatusFailed, "training_failed", nil)
	assert.Equal(t, models.RunStatusFailed, state.CurrentRun().Status)
}

func TestRunState_WithoutRecorder(t *testing.T) {
	state := newRunState(models.Run{ID: "run-1"}, nil)
	state.setStatus(context.Background(), models.RunStatusCancelled, "interrupted", nil)
	assert.Equal(t, models.RunStatusCancelled, state.CurrentRun().Status)
}
