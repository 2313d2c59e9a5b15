package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"train-callbacks/core/callbacks"
)

// Feed keys a training step hands to the hooks
const (
	FeedX = "x"
	FeedY = "y"
)

// Config configures the training loop
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
}

// Trainer runs minibatch gradient descent on a LinearModel and drives the
// run's callbacks
type Trainer struct {
	model  *LinearModel
	data   *Dataset
	config Config
	hooks  *callbacks.Callbacks
	logger *log.Logger
}

// NewTrainer creates a new trainer
func NewTrainer(model *LinearModel, data *Dataset, config Config, hooks *callbacks.Callbacks) (*Trainer, error) {
	if model == nil || data == nil || hooks == nil {
		return nil, errors.New("trainer needs a model, a dataset and callbacks")
	}
	if config.Epochs < 0 {
		return nil, fmt.Errorf("invalid epoch count %d", config.Epochs)
	}
	if data.Len() > 0 && len(data.X[0]) != len(model.Weights) {
		return nil, fmt.Errorf("dataset has %d features, model has %d", len(data.X[0]), len(model.Weights))
	}
	return &Trainer{
		model:  model,
		data:   data,
		config: config,
		hooks:  hooks,
		logger: log.Default(),
	}, nil
}

// Summaries returns the run's summary source: the loss on a step's batch
// and the model's weight norm and bias
func (t *Trainer) Summaries() callbacks.SummarySource {
	return func(ctx context.Context, inputs callbacks.Feed) (map[string]float64, error) {
		scalars := map[string]float64{
			"weight_norm": t.model.WeightNorm(),
			"bias":        t.model.Bias,
		}
		if inputs == nil {
			return scalars, nil
		}

		xs, okX := inputs[FeedX].([][]float64)
		ys, okY := inputs[FeedY].([]float64)
		if !okX || !okY {
			return nil, fmt.Errorf("feed is missing %q or %q", FeedX, FeedY)
		}
		scalars["loss"] = t.model.Loss(xs, ys)
		return scalars, nil
	}
}

// Train runs the training loop. tc.Model and tc.Summaries are filled in
// when empty. Training stops between steps when ctx is cancelled.
func (t *Trainer) Train(ctx context.Context, tc *callbacks.TrainContext) error {
	if tc.Model == nil {
		tc.Model = t.model
	}
	if tc.Summaries == nil {
		tc.Summaries = t.Summaries()
	}
	if tc.Logger != nil {
		t.logger = tc.Logger
	}

	if err := t.hooks.BeforeTrain(ctx, tc); err != nil {
		return fmt.Errorf("failed to start training: %w", err)
	}

	rng := rand.New(rand.NewSource(t.config.Seed))
	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		var epochLoss float64
		batches := t.data.Batches(rng.Perm(t.data.Len()), t.config.BatchSize)

		for _, b := range batches {
			if err := ctx.Err(); err != nil {
				return err
			}

			preds, loss := t.model.Step(b.X, b.Y, t.config.LearningRate)
			epochLoss += loss

			inputs := callbacks.Feed{FeedX: b.X, FeedY: b.Y}
			if err := t.hooks.TriggerStep(ctx, inputs, []any{preds}, loss); err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}

		if err := t.hooks.TriggerEpoch(ctx); err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if len(batches) > 0 {
			t.logger.Printf("Epoch %d/%d: mean loss %.6f", epoch, t.config.Epochs, epochLoss/float64(len(batches)))
		}
	}
	return nil
}
