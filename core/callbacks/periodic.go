package callbacks

import (
	"context"
	"fmt"
)

// TriggerFunc is the payload of a periodic hook. epoch is the number of
// epochs completed so far.
type TriggerFunc func(ctx context.Context, epoch int) error

// Periodic gates a trigger so that it fires only every period epochs.
//
// The counter starts at 0 and is incremented on every TriggerEpoch call,
// whether the trigger fires or not. It is never reset.
type Periodic struct {
	Base
	period  int
	epoch   int
	trigger TriggerFunc
}

// NewPeriodic creates a periodic hook. period must be positive.
func NewPeriodic(period int, trigger TriggerFunc) (*Periodic, error) {
	if period <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("period must be positive, got %d", period)}
	}
	if trigger == nil {
		return nil, &ConfigurationError{Reason: "periodic trigger is nil"}
	}
	return &Periodic{period: period, trigger: trigger}, nil
}

// TriggerEpoch advances the counter and fires the trigger when it is due
func (p *Periodic) TriggerEpoch(ctx context.Context) error {
	p.epoch++
	if p.epoch%p.period == 0 {
		return p.trigger(ctx, p.epoch)
	}
	return nil
}

// Epoch returns the number of epochs seen
func (p *Periodic) Epoch() int {
	return p.epoch
}

// Period returns the configured period
func (p *Periodic) Period() int {
	return p.period
}
