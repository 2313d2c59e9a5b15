package callbacks

import (
	"context"
	"encoding"
	"log"
	"sync"

	"train-callbacks/core/models"
)

// Model is the trainable state hooks may snapshot
type Model interface {
	encoding.BinaryMarshaler
}

// SummarySource evaluates the run's summary scalars on a step's inputs.
// A nil source means the run defines no summaries.
type SummarySource func(ctx context.Context, inputs Feed) (map[string]float64, error)

// SummaryChannel is the output channel owned by the summary sink
type SummaryChannel interface {
	AddSummary(ctx context.Context, rec models.SummaryRecord) error
	Flush(ctx context.Context) error
}

// TrainContext is handed to every hook in BeforeTrain. It carries the
// state the training loop exposes and the summary channel slot the
// summary sink fills in.
type TrainContext struct {
	RunID     string
	LogDir    string
	Model     Model
	Summaries SummarySource
	Logger    *log.Logger

	mu      sync.RWMutex
	summary SummaryChannel
}

// NewTrainContext creates a context for a run
func NewTrainContext(runID string, model Model) *TrainContext {
	return &TrainContext{
		RunID: runID,
		Model: model,
	}
}

// SetSummaryChannel registers the run's summary channel. It can be set once.
func (tc *TrainContext) SetSummaryChannel(ch SummaryChannel) error {
	if ch == nil {
		return &ConfigurationError{Reason: "nil summary channel"}
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.summary != nil {
		return &ConfigurationError{Reason: "summary channel already registered"}
	}
	tc.summary = ch
	return nil
}

// SummaryChannel returns the registered summary channel, if any
func (tc *TrainContext) SummaryChannel() (SummaryChannel, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.summary, tc.summary != nil
}

func (tc *TrainContext) logger() *log.Logger {
	if tc.Logger != nil {
		return tc.Logger
	}
	return log.Default()
}

// TeeSummaryChannel fans summaries out to several channels in order
func TeeSummaryChannel(channels ...SummaryChannel) SummaryChannel {
	return teeChannel(channels)
}

type teeChannel []SummaryChannel

func (t teeChannel) AddSummary(ctx context.Context, rec models.SummaryRecord) error {
	for _, ch := range t {
		if err := ch.AddSummary(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (t teeChannel) Flush(ctx context.Context) error {
	for _, ch := range t {
		if err := ch.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}
