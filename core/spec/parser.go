package spec

import (
	"fmt"
	"os"
	"path/filepath"

	"train-callbacks/core/callbacks"
	"train-callbacks/core/models"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields the run spec leaves empty
const (
	DefaultEpochs       = 10
	DefaultBatchSize    = 32
	DefaultLearningRate = 0.01
	DefaultSamples      = 1024
	DefaultSaverPeriod  = 1
	DefaultLogDir       = "train_log"
)

// RunSpecFile represents the YAML run specification
type RunSpecFile struct {
	Run       RunSpecRun       `yaml:"run"`
	Callbacks RunSpecCallbacks `yaml:"callbacks"`
}

// RunSpecRun represents the run section of the spec
type RunSpecRun struct {
	Name         string  `yaml:"name"`
	LogDir       string  `yaml:"log_dir"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
	Samples      int     `yaml:"samples"`
	Resume       bool    `yaml:"resume"`
}

// RunSpecCallbacks represents the hooks attached to the run
type RunSpecCallbacks struct {
	Summary  RunSpecSummary `yaml:"summary"`
	Saver    *RunSpecSaver  `yaml:"saver,omitempty"`
	Cost     *RunSpecCost   `yaml:"cost,omitempty"`
	Progress *bool          `yaml:"progress,omitempty"` // Default: true
}

// RunSpecSummary configures the summary sink
type RunSpecSummary struct {
	Database bool `yaml:"database"`
}

// RunSpecSaver configures periodic checkpointing
type RunSpecSaver struct {
	Period    int `yaml:"period"`
	MaxToKeep int `yaml:"max_to_keep"`
}

// RunSpecCost configures cost accounting
type RunSpecCost struct {
	Provider     string  `yaml:"provider"` // aws | static
	InstanceType string  `yaml:"instance_type"`
	Region       string  `yaml:"region"`
	Count        int     `yaml:"count"`
	Spot         bool    `yaml:"spot"`
	PricePerHour float64 `yaml:"price_per_hour"`
	Budget       float64 `yaml:"budget"`
}

// LoadRunSpec reads and parses a run spec file
func LoadRunSpec(path string) (*models.RunSpec, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read run spec: %w", err)
	}
	return ParseRunSpec(string(data))
}

// ParseRunSpec parses a YAML run specification into a RunSpec model
func ParseRunSpec(specYAML string) (*models.RunSpec, error) {
	var spec RunSpecFile
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	run := &models.RunSpec{
		Name:         spec.Run.Name,
		LogDir:       spec.Run.LogDir,
		Epochs:       spec.Run.Epochs,
		BatchSize:    spec.Run.BatchSize,
		LearningRate: spec.Run.LearningRate,
		Seed:         spec.Run.Seed,
		Samples:      spec.Run.Samples,
		Resume:       spec.Run.Resume,
		SpecYAML:     specYAML,
	}

	// Set defaults
	if run.LogDir == "" {
		run.LogDir = DefaultLogDir
	}
	if run.Epochs == 0 {
		run.Epochs = DefaultEpochs
	}
	if run.BatchSize == 0 {
		run.BatchSize = DefaultBatchSize
	}
	if run.LearningRate == 0 {
		run.LearningRate = DefaultLearningRate
	}
	if run.Samples == 0 {
		run.Samples = DefaultSamples
	}

	run.Callbacks = models.CallbackSpec{
		Summary:  models.SummarySpec{Database: spec.Callbacks.Summary.Database},
		Progress: true,
	}
	if spec.Callbacks.Progress != nil {
		run.Callbacks.Progress = *spec.Callbacks.Progress
	}

	if s := spec.Callbacks.Saver; s != nil {
		run.Callbacks.Saver = &models.SaverSpec{
			Period:    s.Period,
			MaxToKeep: s.MaxToKeep,
		}
		if run.Callbacks.Saver.Period == 0 {
			run.Callbacks.Saver.Period = DefaultSaverPeriod
		}
	}

	if c := spec.Callbacks.Cost; c != nil {
		run.Callbacks.Cost = &models.CostSpec{
			Provider:     models.Provider(c.Provider),
			InstanceType: c.InstanceType,
			Region:       c.Region,
			Count:        c.Count,
			Spot:         c.Spot,
			PricePerHour: c.PricePerHour,
			BudgetUSD:    c.Budget,
		}
		if run.Callbacks.Cost.Provider == "" {
			run.Callbacks.Cost.Provider = models.ProviderStatic
		}
		if run.Callbacks.Cost.Count == 0 {
			run.Callbacks.Cost.Count = 1
		}
	}

	if err := Validate(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Validate checks a run spec for values training cannot start with
func Validate(run *models.RunSpec) error {
	switch {
	case run.Name == "":
		return invalid("run.name is required")
	case run.Epochs < 0:
		return invalid("run.epochs must be positive, got %d", run.Epochs)
	case run.BatchSize < 0:
		return invalid("run.batch_size must be positive, got %d", run.BatchSize)
	case run.LearningRate < 0:
		return invalid("run.learning_rate must be positive, got %g", run.LearningRate)
	case run.Samples < 0:
		return invalid("run.samples must be positive, got %d", run.Samples)
	}

	if s := run.Callbacks.Saver; s != nil {
		if s.Period < 0 {
			return invalid("callbacks.saver.period must be positive, got %d", s.Period)
		}
		if s.MaxToKeep < 0 {
			return invalid("callbacks.saver.max_to_keep must not be negative, got %d", s.MaxToKeep)
		}
	}

	if c := run.Callbacks.Cost; c != nil {
		switch c.Provider {
		case models.ProviderStatic:
			if c.PricePerHour <= 0 {
				return invalid("callbacks.cost.price_per_hour is required for the static provider")
			}
		case models.ProviderAWS:
			if c.InstanceType == "" {
				return invalid("callbacks.cost.instance_type is required for the aws provider")
			}
		default:
			return invalid("unknown cost provider %q", c.Provider)
		}
		if c.Count < 0 {
			return invalid("callbacks.cost.count must be positive, got %d", c.Count)
		}
		if c.BudgetUSD < 0 {
			return invalid("callbacks.cost.budget must not be negative, got %g", c.BudgetUSD)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return &callbacks.ConfigurationError{Reason: fmt.Sprintf("invalid run spec: "+format, args...)}
}
