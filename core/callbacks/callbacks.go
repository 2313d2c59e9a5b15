package callbacks

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// Epoch dispatches faster than this are never reported
	slowTotalFloor = 3 * time.Second
	// A hook is slow when it takes more than this share of the dispatch...
	slowShare = 0.3
	// ...and more than this in absolute terms
	slowHookFloor = 1 * time.Second
)

type state int

const (
	stateUninitialized state = iota
	stateTraining
	stateFailed
)

// TimingSample is the time one hook spent in a single epoch dispatch
type TimingSample struct {
	Hook    string        `json:"hook"`
	Elapsed time.Duration `json:"elapsed"`
}

// EpochReport describes the timing of one epoch dispatch
type EpochReport struct {
	Epoch   int            `json:"epoch"`
	Samples []TimingSample `json:"samples"`
	Total   time.Duration  `json:"total"`
	Slow    []TimingSample `json:"slow"`
}

// Message formats the slow-hook diagnostic line
func (r EpochReport) Message() string {
	msgs := make([]string, 0, len(r.Slow))
	for _, s := range r.Slow {
		msgs = append(msgs, fmt.Sprintf("%s:%.3f", s.Hook, s.Elapsed.Seconds()))
	}
	return fmt.Sprintf("Callbacks took %.3f sec. %s", r.Total.Seconds(), strings.Join(msgs, " "))
}

func isSlow(elapsed, total time.Duration) bool {
	if total <= 0 {
		return false
	}
	return float64(elapsed)/float64(total) > slowShare && elapsed > slowHookFloor
}

// Callbacks dispatches the training loop's lifecycle calls to an ordered
// list of hooks.
//
// Exactly one hook must have RoleSummarySink. It is moved to the front of
// the list so that it registers the summary channel before any other hook
// runs BeforeTrain. The remaining hooks keep their registration order.
//
// Callbacks is driven by a single training loop goroutine. LastEpochReport
// may be read concurrently.
type Callbacks struct {
	callbacks []Callback
	names     []string
	clock     Clock
	logger    *log.Logger

	state   state
	epoch   int
	summary SummaryChannel

	mu         sync.RWMutex
	lastReport *EpochReport
}

// Option configures Callbacks
type Option func(*Callbacks)

// WithClock sets the clock used to time epoch hooks
func WithClock(clock Clock) Option {
	return func(c *Callbacks) {
		c.clock = clock
	}
}

// New creates the dispatcher. It fails with a ConfigurationError when the
// hooks do not contain exactly one summary sink.
func New(hooks []Callback, opts ...Option) (*Callbacks, error) {
	sink := -1
	for idx, cb := range hooks {
		if cb == nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("callback %d is nil", idx)}
		}
		if roleOf(cb) != RoleSummarySink {
			continue
		}
		if sink >= 0 {
			return nil, &ConfigurationError{Reason: fmt.Sprintf(
				"callbacks contain more than one summary sink (%s, %s)",
				hookName(hooks[sink]), hookName(cb))}
		}
		sink = idx
	}
	if sink < 0 {
		return nil, &ConfigurationError{Reason: "callbacks must contain a summary sink"}
	}

	ordered := make([]Callback, 0, len(hooks))
	ordered = append(ordered, hooks[sink])
	ordered = append(ordered, hooks[:sink]...)
	ordered = append(ordered, hooks[sink+1:]...)

	names := make([]string, len(ordered))
	for i, cb := range ordered {
		names[i] = hookName(cb)
	}

	c := &Callbacks{
		callbacks: ordered,
		names:     names,
		clock:     SystemClock(),
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Names returns the diagnostic names of the hooks in dispatch order
func (c *Callbacks) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of hooks
func (c *Callbacks) Len() int {
	return len(c.callbacks)
}

// BeforeTrain runs every hook's BeforeTrain in order, then picks up the
// summary channel the summary sink registered in tc. Diagnostics go to
// tc.Logger, or log.Default when it is nil.
//
// A failed BeforeTrain is terminal: hooks that already ran keep their
// resources (the sink's event file, the channel slot in tc), so the caller
// closes them and starts over with new hooks and a new TrainContext. Later
// calls return ErrStartFailed.
func (c *Callbacks) BeforeTrain(ctx context.Context, tc *TrainContext) error {
	switch c.state {
	case stateTraining:
		return ErrAlreadyStarted
	case stateFailed:
		return ErrStartFailed
	}
	if tc == nil {
		return &ConfigurationError{Reason: "nil train context"}
	}

	for i, cb := range c.callbacks {
		if err := cb.BeforeTrain(ctx, tc); err != nil {
			c.state = stateFailed
			return &HookError{Hook: c.names[i], Phase: PhaseBeforeTrain, Err: err}
		}
	}

	ch, ok := tc.SummaryChannel()
	if !ok {
		c.state = stateFailed
		return &ConfigurationError{Reason: fmt.Sprintf("summary sink %s did not register a summary channel", c.names[0])}
	}
	c.summary = ch
	c.logger = tc.logger()
	c.state = stateTraining
	return nil
}

// TriggerStep runs every hook's TriggerStep in order. inputs, outputs and
// cost are passed through unmodified.
func (c *Callbacks) TriggerStep(ctx context.Context, inputs Feed, outputs []any, cost float64) error {
	if c.state != stateTraining {
		return ErrNotStarted
	}
	for i, cb := range c.callbacks {
		if err := cb.TriggerStep(ctx, inputs, outputs, cost); err != nil {
			return &HookError{Hook: c.names[i], Phase: PhaseStep, Err: err}
		}
	}
	return nil
}

// TriggerEpoch runs every hook's TriggerEpoch in order, timing each one,
// and flushes the summary channel. When the whole dispatch took at least
// 3 seconds, hooks that took over 30% of it and over 1 second are logged.
func (c *Callbacks) TriggerEpoch(ctx context.Context) error {
	if c.state != stateTraining {
		return ErrNotStarted
	}

	start := c.clock.Now()
	samples := make([]TimingSample, 0, len(c.callbacks))
	for i, cb := range c.callbacks {
		s := c.clock.Now()
		if err := cb.TriggerEpoch(ctx); err != nil {
			return &HookError{Hook: c.names[i], Phase: PhaseEpoch, Err: err}
		}
		samples = append(samples, TimingSample{Hook: c.names[i], Elapsed: c.clock.Now().Sub(s)})
	}
	if err := c.summary.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush summaries: %w", err)
	}
	total := c.clock.Now().Sub(start)
	c.epoch++

	report := &EpochReport{Epoch: c.epoch, Samples: samples, Total: total}
	if total >= slowTotalFloor {
		for _, s := range samples {
			if isSlow(s.Elapsed, total) {
				report.Slow = append(report.Slow, s)
			}
		}
	}

	c.mu.Lock()
	c.lastReport = report
	c.mu.Unlock()

	if total < slowTotalFloor {
		return nil
	}
	c.logger.Print(report.Message())
	return nil
}

// LastEpochReport returns the timing of the most recent epoch dispatch
func (c *Callbacks) LastEpochReport() (EpochReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastReport == nil {
		return EpochReport{}, false
	}
	return *c.lastReport, true
}
