package training

import (
	"errors"

	"train-callbacks/core/callbacks"
	"train-callbacks/core/models"
	"train-callbacks/core/monitoring"
	"train-callbacks/storage"
)

// HookDeps are the optional services hooks are wired to
type HookDeps struct {
	Mirror      callbacks.SummaryChannel // Also receives every summary
	Artifacts   storage.ArtifactRecorder // Records checkpoints and the summary event file
	Prices      monitoring.PriceSource   // Required for the aws cost provider
	Clock       callbacks.Clock
	EpochOffset int // Epoch a resumed run restored from
}

// Hooks are the callbacks a run spec asks for
type Hooks struct {
	List     []callbacks.Callback
	Writer   *callbacks.SummaryWriter
	Saver    *callbacks.PeriodicSaver
	Cost     *monitoring.CostTracker
	Progress *monitoring.ProgressMonitor
}

// BuildHooks creates the hooks a run spec configures. The summary writer
// is always present.
func BuildHooks(run *models.RunSpec, deps HookDeps) (*Hooks, error) {
	clock := deps.Clock
	if clock == nil {
		clock = callbacks.SystemClock()
	}
	h := &Hooks{}

	if run.Callbacks.Progress {
		h.Progress = monitoring.NewProgressMonitor(clock)
		h.List = append(h.List, h.Progress)
	}

	if s := run.Callbacks.Saver; s != nil {
		var cmOpts []storage.CheckpointOption
		if s.MaxToKeep > 0 {
			cmOpts = append(cmOpts, storage.WithMaxToKeep(s.MaxToKeep))
		}
		if deps.Artifacts != nil {
			cmOpts = append(cmOpts, storage.WithArtifactRecorder(deps.Artifacts))
		}
		saver, err := callbacks.NewPeriodicSaver(run.LogDir, s.Period,
			callbacks.WithCheckpointOptions(cmOpts...),
			callbacks.WithEpochOffset(deps.EpochOffset),
		)
		if err != nil {
			return nil, err
		}
		h.Saver = saver
		h.List = append(h.List, saver)
	}

	if c := run.Callbacks.Cost; c != nil {
		prices, err := priceSource(c, deps.Prices)
		if err != nil {
			return nil, err
		}
		h.Cost = monitoring.NewCostTracker(prices, monitoring.CostTrackerConfig{
			InstanceType: c.InstanceType,
			Region:       c.Region,
			Count:        c.Count,
			Spot:         c.Spot,
			BudgetUSD:    c.BudgetUSD,
		}, clock)
		h.List = append(h.List, h.Cost)
	}

	var writerOpts []callbacks.SummaryWriterOption
	writerOpts = append(writerOpts, callbacks.WithSummaryClock(clock))
	if deps.Mirror != nil {
		writerOpts = append(writerOpts, callbacks.WithMirror(deps.Mirror))
	}
	if deps.Artifacts != nil {
		writerOpts = append(writerOpts, callbacks.WithSummaryArtifacts(deps.Artifacts))
	}
	h.Writer = callbacks.NewSummaryWriter(run.LogDir, writerOpts...)
	h.List = append(h.List, h.Writer)

	return h, nil
}

func priceSource(c *models.CostSpec, prices monitoring.PriceSource) (monitoring.PriceSource, error) {
	switch c.Provider {
	case models.ProviderAWS:
		if prices == nil {
			return nil, errors.New("aws cost provider needs a price source")
		}
		return prices, nil
	default:
		return monitoring.StaticPriceSource{
			c.InstanceType: {
				Provider:     models.ProviderStatic,
				InstanceType: c.InstanceType,
				Region:       c.Region,
				PricePerHour: c.PricePerHour,
			},
		}, nil
	}
}
