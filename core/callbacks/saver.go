package callbacks

import (
	"context"
	"encoding"

	"train-callbacks/storage"
)

// Checkpointer persists a model snapshot tagged with an epoch number
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, runID string, model encoding.BinaryMarshaler, epoch int) (string, error)
}

// PeriodicSaver saves a checkpoint of the run's model every period epochs
type PeriodicSaver struct {
	Base
	logDir       string
	periodic     *Periodic
	checkpointer Checkpointer
	cmOpts       []storage.CheckpointOption
	offset       int

	runID    string
	model    Model
	lastPath string
}

// SaverOption configures a PeriodicSaver
type SaverOption func(*PeriodicSaver)

// WithCheckpointer replaces the default checkpoint manager
func WithCheckpointer(c Checkpointer) SaverOption {
	return func(s *PeriodicSaver) {
		s.checkpointer = c
	}
}

// WithCheckpointOptions configures the default checkpoint manager
func WithCheckpointOptions(opts ...storage.CheckpointOption) SaverOption {
	return func(s *PeriodicSaver) {
		s.cmOpts = append(s.cmOpts, opts...)
	}
}

// WithEpochOffset numbers checkpoints from offset+1 on. A resumed run
// passes the epoch it restored from.
func WithEpochOffset(offset int) SaverOption {
	return func(s *PeriodicSaver) {
		s.offset = offset
	}
}

// NewPeriodicSaver creates a saver writing checkpoints under logDir. An
// empty logDir falls back to the train context's LogDir.
func NewPeriodicSaver(logDir string, period int, opts ...SaverOption) (*PeriodicSaver, error) {
	s := &PeriodicSaver{logDir: logDir}
	periodic, err := NewPeriodic(period, s.save)
	if err != nil {
		return nil, err
	}
	s.periodic = periodic
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BeforeTrain binds the saver to the run's model
func (s *PeriodicSaver) BeforeTrain(ctx context.Context, tc *TrainContext) error {
	if tc.Model == nil {
		return &ConfigurationError{Reason: "periodic saver needs a model in the train context"}
	}
	s.runID = tc.RunID
	s.model = tc.Model
	if s.checkpointer == nil {
		logDir := s.logDir
		if logDir == "" {
			logDir = tc.LogDir
		}
		if logDir == "" {
			return &ConfigurationError{Reason: "periodic saver has no log directory"}
		}
		opts := append([]storage.CheckpointOption{storage.WithCheckpointLogger(tc.logger())}, s.cmOpts...)
		s.checkpointer = storage.NewCheckpointManager(logDir, opts...)
	}
	return nil
}

// TriggerEpoch saves a checkpoint when the period is due
func (s *PeriodicSaver) TriggerEpoch(ctx context.Context) error {
	return s.periodic.TriggerEpoch(ctx)
}

func (s *PeriodicSaver) save(ctx context.Context, epoch int) error {
	path, err := s.checkpointer.SaveCheckpoint(ctx, s.runID, s.model, s.offset+epoch)
	if err != nil {
		return err
	}
	s.lastPath = path
	return nil
}

// Epoch returns the number of epochs seen
func (s *PeriodicSaver) Epoch() int {
	return s.periodic.Epoch()
}

// LastCheckpoint returns the path of the last saved checkpoint
func (s *PeriodicSaver) LastCheckpoint() string {
	return s.lastPath
}
