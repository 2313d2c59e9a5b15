package callbacks

import (
	"context"
	"fmt"

	"train-callbacks/core/models"
	"train-callbacks/storage"

	"github.com/google/uuid"
)

// SummaryWriter is the summary sink. It opens the run's summary event file,
// registers it as the run's summary channel and appends the run's summary
// scalars once per epoch.
type SummaryWriter struct {
	Base
	logDir   string
	mirror   SummaryChannel
	clock    Clock
	recorder storage.ArtifactRecorder

	file    *storage.SummaryFile
	channel SummaryChannel
	runID   string
	source  SummarySource

	lastInputs Feed
	steps      int64
	epoch      int
}

// SummaryWriterOption configures a SummaryWriter
type SummaryWriterOption func(*SummaryWriter)

// WithMirror also writes every summary to ch
func WithMirror(ch SummaryChannel) SummaryWriterOption {
	return func(w *SummaryWriter) {
		w.mirror = ch
	}
}

// WithSummaryClock sets the clock used for summary wall times
func WithSummaryClock(clock Clock) SummaryWriterOption {
	return func(w *SummaryWriter) {
		w.clock = clock
	}
}

// WithSummaryArtifacts records the opened event file as a run artifact
func WithSummaryArtifacts(r storage.ArtifactRecorder) SummaryWriterOption {
	return func(w *SummaryWriter) {
		w.recorder = r
	}
}

// NewSummaryWriter creates a summary sink writing under logDir. An empty
// logDir falls back to the train context's LogDir.
func NewSummaryWriter(logDir string, opts ...SummaryWriterOption) *SummaryWriter {
	w := &SummaryWriter{
		logDir: logDir,
		clock:  SystemClock(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Role marks the writer as the summary sink
func (w *SummaryWriter) Role() Role {
	return RoleSummarySink
}

// BeforeTrain opens the event file and registers the summary channel
func (w *SummaryWriter) BeforeTrain(ctx context.Context, tc *TrainContext) error {
	logDir := w.logDir
	if logDir == "" {
		logDir = tc.LogDir
	}
	if logDir == "" {
		return &ConfigurationError{Reason: "summary writer has no log directory"}
	}

	file, err := storage.OpenSummaryFile(logDir, tc.RunID)
	if err != nil {
		return err
	}

	header := map[string]interface{}{
		"run_id":     tc.RunID,
		"log_dir":    logDir,
		"created_at": w.clock.Now(),
		"model":      fmt.Sprintf("%T", tc.Model),
	}
	if err := file.WriteHeader(header); err != nil {
		file.Close()
		return fmt.Errorf("failed to write summary header: %w", err)
	}

	if w.recorder != nil {
		err := w.recorder.CreateArtifact(ctx, &models.RunArtifact{
			ID:        uuid.New().String(),
			RunID:     tc.RunID,
			Type:      models.ArtifactTypeSummary,
			URI:       file.Path(),
			CreatedAt: w.clock.Now(),
		})
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to record summary artifact: %w", err)
		}
	}

	var ch SummaryChannel = file
	if w.mirror != nil {
		ch = TeeSummaryChannel(file, w.mirror)
	}
	if err := tc.SetSummaryChannel(ch); err != nil {
		file.Close()
		return err
	}

	w.file = file
	w.channel = ch
	w.runID = tc.RunID
	w.source = tc.Summaries
	return nil
}

// TriggerStep remembers the step's inputs for the next epoch summary
func (w *SummaryWriter) TriggerStep(ctx context.Context, inputs Feed, outputs []any, cost float64) error {
	w.lastInputs = inputs
	w.steps++
	return nil
}

// TriggerEpoch evaluates the run's summaries on the last step's inputs and
// appends them. It does nothing when the run defines no summaries.
func (w *SummaryWriter) TriggerEpoch(ctx context.Context) error {
	if w.source == nil {
		return nil
	}

	scalars, err := w.source(ctx, w.lastInputs)
	if err != nil {
		return fmt.Errorf("failed to evaluate summaries: %w", err)
	}
	w.epoch++
	return w.channel.AddSummary(ctx, models.SummaryRecord{
		RunID:    w.runID,
		Epoch:    w.epoch,
		Step:     w.steps,
		Scalars:  scalars,
		WallTime: w.clock.Now(),
	})
}

// Path returns the event file path, empty before BeforeTrain
func (w *SummaryWriter) Path() string {
	if w.file == nil {
		return ""
	}
	return w.file.Path()
}

// Close flushes and closes the event file
func (w *SummaryWriter) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
