package training

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-callbacks/core/callbacks"
	"train-callbacks/core/models"
	"train-callbacks/core/monitoring"
	"train-callbacks/storage"
)

func testRunSpec(dir string) *models.RunSpec {
	return &models.RunSpec{
		Name:         "linreg",
		LogDir:       dir,
		Epochs:       4,
		BatchSize:    16,
		LearningRate: 0.1,
		Seed:         3,
		Samples:      128,
		Callbacks: models.CallbackSpec{
			Saver:    &models.SaverSpec{Period: 2, MaxToKeep: 5},
			Cost:     &models.CostSpec{Provider: models.ProviderStatic, InstanceType: "cpu", PricePerHour: 1},
			Progress: true,
		},
	}
}

func newTestTrainer(t *testing.T, run *models.RunSpec) (*Trainer, *Hooks, *callbacks.Callbacks) {
	t.Helper()
	hooks, err := BuildHooks(run, HookDeps{})
	require.NoError(t, err)

	cbs, err := callbacks.New(hooks.List)
	require.NoError(t, err)

	data := Synthetic(run.Samples, DefaultFeatures, run.Seed)
	trainer, err := NewTrainer(NewLinearModel(DefaultFeatures), data, Config{
		Epochs:       run.Epochs,
		BatchSize:    run.BatchSize,
		LearningRate: run.LearningRate,
		Seed:         run.Seed,
	}, cbs)
	require.NoError(t, err)
	return trainer, hooks, cbs
}

// quietContext returns a train context whose logger discards output
func quietContext() *callbacks.TrainContext {
	tc := callbacks.NewTrainContext("run-1", nil)
	tc.Logger = log.New(&bytes.Buffer{}, "", 0)
	return tc
}

func TestBuildHooks_Order(t *testing.T) {
	hooks, err := BuildHooks(testRunSpec(t.TempDir()), HookDeps{})
	require.NoError(t, err)

	require.Len(t, hooks.List, 4)
	assert.Same(t, hooks.Progress, hooks.List[0])
	assert.Same(t, hooks.Saver, hooks.List[1])
	assert.Same(t, hooks.Cost, hooks.List[2])
	assert.Same(t, hooks.Writer, hooks.List[3])

	cbs, err := callbacks.New(hooks.List)
	require.NoError(t, err)
	assert.Equal(t, []string{"SummaryWriter", "ProgressMonitor", "PeriodicSaver", "CostTracker"}, cbs.Names())
}

func TestBuildHooks_WriterOnly(t *testing.T) {
	hooks, err := BuildHooks(&models.RunSpec{Name: "bare", LogDir: t.TempDir()}, HookDeps{})
	require.NoError(t, err)

	require.Len(t, hooks.List, 1)
	assert.Nil(t, hooks.Saver)
	assert.Nil(t, hooks.Cost)
	assert.Nil(t, hooks.Progress)
}

func TestBuildHooks_AWSNeedsPriceSource(t *testing.T) {
	run := testRunSpec(t.TempDir())
	run.Callbacks.Cost = &models.CostSpec{Provider: models.ProviderAWS, InstanceType: "p3.2xlarge"}

	_, err := BuildHooks(run, HookDeps{})
	require.Error(t, err)

	_, err = BuildHooks(run, HookDeps{Prices: monitoring.StaticPriceSource{}})
	require.NoError(t, err)
}

func TestTrainer_Train(t *testing.T) {
	run := testRunSpec(t.TempDir())
	trainer, hooks, cbs := newTestTrainer(t, run)

	initialLoss := trainer.model.Loss(trainer.data.X, trainer.data.Y)
	tc := quietContext()
	require.NoError(t, trainer.Train(context.Background(), tc))
	require.NoError(t, hooks.Writer.Close())

	assert.Less(t, trainer.model.Loss(trainer.data.X, trainer.data.Y), initialLoss/10)

	// 128 samples in batches of 16
	progress := hooks.Progress.Snapshot()
	assert.Equal(t, int64(32), progress.Steps)
	assert.Equal(t, 4, progress.Epochs)

	cm := storage.NewCheckpointManager(run.LogDir)
	checkpoints, err := cm.ListCheckpoints(context.Background())
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)
	assert.Equal(t, 2, checkpoints[0].Epoch)
	assert.Equal(t, 4, checkpoints[1].Epoch)

	records, err := storage.ReadSummaries(hooks.Writer.Path())
	require.NoError(t, err)
	var lossRecords, costRecords int
	for _, rec := range records {
		if _, ok := rec.Scalars["loss"]; ok {
			lossRecords++
		}
		if _, ok := rec.Scalars["cost_usd"]; ok {
			costRecords++
		}
	}
	assert.Equal(t, 4, lossRecords)
	assert.Equal(t, 4, costRecords)

	report, ok := cbs.LastEpochReport()
	require.True(t, ok)
	assert.Equal(t, 4, report.Epoch)
	assert.Len(t, report.Samples, 4)
}

type artifactLog struct {
	artifacts []*models.RunArtifact
}

func (a *artifactLog) CreateArtifact(_ context.Context, artifact *models.RunArtifact) error {
	a.artifacts = append(a.artifacts, artifact)
	return nil
}

func TestTrainer_RecordsArtifacts(t *testing.T) {
	run := testRunSpec(t.TempDir())
	rec := &artifactLog{}
	hooks, err := BuildHooks(run, HookDeps{Artifacts: rec})
	require.NoError(t, err)
	cbs, err := callbacks.New(hooks.List)
	require.NoError(t, err)

	trainer, err := NewTrainer(NewLinearModel(DefaultFeatures), Synthetic(run.Samples, DefaultFeatures, run.Seed), Config{
		Epochs:       run.Epochs,
		BatchSize:    run.BatchSize,
		LearningRate: run.LearningRate,
		Seed:         run.Seed,
	}, cbs)
	require.NoError(t, err)
	require.NoError(t, trainer.Train(context.Background(), quietContext()))
	require.NoError(t, hooks.Writer.Close())

	var types []models.ArtifactType
	for _, a := range rec.artifacts {
		types = append(types, a.Type)
	}
	// the writer runs BeforeTrain first; checkpoints follow at epochs 2 and 4
	assert.Equal(t, []models.ArtifactType{
		models.ArtifactTypeSummary,
		models.ArtifactTypeCheckpoint,
		models.ArtifactTypeCheckpoint,
	}, types)
	assert.Equal(t, hooks.Writer.Path(), rec.artifacts[0].URI)
}

func TestTrainer_ResumeFromCheckpoint(t *testing.T) {
	run := testRunSpec(t.TempDir())
	trainer, hooks, _ := newTestTrainer(t, run)
	require.NoError(t, trainer.Train(context.Background(), quietContext()))
	require.NoError(t, hooks.Writer.Close())

	restored := NewLinearModel(DefaultFeatures)
	epoch, err := storage.NewCheckpointManager(run.LogDir).Restore(context.Background(), restored)
	require.NoError(t, err)
	assert.Equal(t, 4, epoch)
	assert.Equal(t, trainer.model.Weights, restored.Weights)
	assert.Equal(t, trainer.model.Bias, restored.Bias)
}

func TestTrainer_StopsOnCancel(t *testing.T) {
	trainer, hooks, _ := newTestTrainer(t, testRunSpec(t.TempDir()))
	defer hooks.Writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := trainer.Train(ctx, quietContext())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, hooks.Progress.Snapshot().Steps)
}

func TestTrainer_BudgetExceededAbortsRun(t *testing.T) {
	trainer, hooks, _ := newTestTrainer(t, testRunSpec(t.TempDir()))
	defer hooks.Writer.Close()

	// Any positive elapsed time overruns a near-zero budget
	clock := &tickingClock{}
	hooks.Cost = monitoring.NewCostTracker(monitoring.StaticPriceSource{"cpu": {PricePerHour: 1}},
		monitoring.CostTrackerConfig{InstanceType: "cpu", BudgetUSD: 1e-12}, clock)
	cbs, err := callbacks.New([]callbacks.Callback{hooks.Writer, hooks.Cost})
	require.NoError(t, err)
	trainer.hooks = cbs

	var logs bytes.Buffer
	tc := callbacks.NewTrainContext("run-1", nil)
	tc.Logger = log.New(&logs, "", 0)

	err = trainer.Train(context.Background(), tc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, monitoring.ErrBudgetExceeded))
	assert.Contains(t, logs.String(), "Run run-1 exceeded budget")

	var hookErr *callbacks.HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "CostTracker", hookErr.Hook)
}

func TestNewTrainer_FeatureMismatch(t *testing.T) {
	cbs, err := callbacks.New([]callbacks.Callback{callbacks.NewSummaryWriter(t.TempDir())})
	require.NoError(t, err)

	_, err = NewTrainer(NewLinearModel(2), Synthetic(8, 3, 1), Config{Epochs: 1}, cbs)
	assert.Error(t, err)
}

func TestSummaries(t *testing.T) {
	trainer := &Trainer{model: &LinearModel{Weights: []float64{3, 4}, Bias: 1}}
	source := trainer.Summaries()

	scalars, err := source(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"weight_norm": 5, "bias": 1}, scalars)

	scalars, err = source(context.Background(), callbacks.Feed{
		FeedX: [][]float64{{1, 1}},
		FeedY: []float64{6},
	})
	require.NoError(t, err)
	assert.Equal(t, 4.0, scalars["loss"])

	_, err = source(context.Background(), callbacks.Feed{FeedX: "bad"})
	assert.Error(t, err)
}

func TestLinearModel_UnmarshalRejectsFeatureMismatch(t *testing.T) {
	data, err := (&LinearModel{Weights: []float64{1, 2, 3}}).MarshalBinary()
	require.NoError(t, err)

	assert.Error(t, NewLinearModel(2).UnmarshalBinary(data))
	assert.NoError(t, NewLinearModel(3).UnmarshalBinary(data))
}

func TestSynthetic_Deterministic(t *testing.T) {
	a := Synthetic(16, 3, 42)
	b := Synthetic(16, 3, 42)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Synthetic(16, 3, 43))
}

func TestDataset_Batches(t *testing.T) {
	d := Synthetic(10, 2, 1)
	order := []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}

	batches := d.Batches(order, 4)
	require.Len(t, batches, 3)
	assert.Len(t, batches[2].X, 2)
	assert.Equal(t, d.X[9], batches[0].X[0])
	assert.Equal(t, d.Y[0], batches[2].Y[1])
}

// tickingClock advances one minute on every reading
type tickingClock struct {
	minutes int
}

func (c *tickingClock) Now() time.Time {
	c.minutes++
	return time.Date(2024, 1, 1, 0, c.minutes, 0, 0, time.UTC)
}
