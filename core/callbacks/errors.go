package callbacks

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is returned when a step or epoch is dispatched before BeforeTrain
	ErrNotStarted = errors.New("callbacks: training has not started")
	// ErrAlreadyStarted is returned when BeforeTrain is called twice
	ErrAlreadyStarted = errors.New("callbacks: training already started")
	// ErrStartFailed is returned when BeforeTrain is called again after it failed
	ErrStartFailed = errors.New("callbacks: BeforeTrain failed, build new callbacks to retry")
)

// ConfigurationError reports an invalid hook setup. It is fatal and raised
// at construction or before training starts.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "callbacks: invalid configuration: " + e.Reason
}

// Phase names the lifecycle point a hook was running in
type Phase string

const (
	PhaseBeforeTrain Phase = "before_train"
	PhaseStep        Phase = "step"
	PhaseEpoch       Phase = "epoch"
)

// HookError wraps an error returned by a hook. Dispatch stops at the first
// failing hook and HookError is returned to the training loop.
type HookError struct {
	Hook  string
	Phase Phase
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("callback %s failed in %s: %v", e.Hook, e.Phase, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
