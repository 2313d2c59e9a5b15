package callbacks

import (
	"context"
	"errors"
	"sync"
	"time"

	"train-callbacks/core/models"
)

// -----------------------------------------------------------------------------
// Test Doubles
// -----------------------------------------------------------------------------

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stepCall struct {
	hook    string
	inputs  Feed
	outputs []any
	cost    float64
}

// recorder collects the order in which hooks are invoked
type recorder struct {
	mu    sync.Mutex
	calls []string
	steps []stepCall
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

type recordingHook struct {
	name     string
	rec      *recorder
	clock    *fakeClock
	epochDur time.Duration
	epochErr error
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) BeforeTrain(ctx context.Context, tc *TrainContext) error {
	h.rec.add(h.name + ".before_train")
	return nil
}

func (h *recordingHook) TriggerStep(ctx context.Context, inputs Feed, outputs []any, cost float64) error {
	h.rec.add(h.name + ".step")
	h.rec.mu.Lock()
	h.rec.steps = append(h.rec.steps, stepCall{hook: h.name, inputs: inputs, outputs: outputs, cost: cost})
	h.rec.mu.Unlock()
	return nil
}

func (h *recordingHook) TriggerEpoch(ctx context.Context) error {
	h.rec.add(h.name + ".epoch")
	if h.clock != nil {
		h.clock.Advance(h.epochDur)
	}
	return h.epochErr
}

// memChannel is an in-memory summary channel
type memChannel struct {
	pending  []models.SummaryRecord
	flushed  []models.SummaryRecord
	flushes  int
	clock    *fakeClock
	flushDur time.Duration
	flushErr error
}

func (m *memChannel) AddSummary(ctx context.Context, rec models.SummaryRecord) error {
	m.pending = append(m.pending, rec)
	return nil
}

func (m *memChannel) Flush(ctx context.Context) error {
	if m.clock != nil {
		m.clock.Advance(m.flushDur)
	}
	if m.flushErr != nil {
		return m.flushErr
	}
	m.flushes++
	m.flushed = append(m.flushed, m.pending...)
	m.pending = nil
	return nil
}

// sinkHook is a summary sink that registers a memChannel
type sinkHook struct {
	recordingHook
	ch *memChannel
}

func (s *sinkHook) Role() Role { return RoleSummarySink }

func (s *sinkHook) BeforeTrain(ctx context.Context, tc *TrainContext) error {
	if err := s.recordingHook.BeforeTrain(ctx, tc); err != nil {
		return err
	}
	return tc.SetSummaryChannel(s.ch)
}

// lookupHook fails unless the summary channel is already registered
type lookupHook struct {
	Base
	found bool
}

func (l *lookupHook) BeforeTrain(ctx context.Context, tc *TrainContext) error {
	_, l.found = tc.SummaryChannel()
	if !l.found {
		return errors.New("summary channel not registered yet")
	}
	return nil
}

type noopModel struct{}

func (noopModel) MarshalBinary() ([]byte, error) { return []byte("{}"), nil }

func modelsRecord(epoch int) models.SummaryRecord {
	return models.SummaryRecord{RunID: "run", Epoch: epoch, Scalars: map[string]float64{"loss": 1}}
}
