package monitoring

import (
	"fmt"
	"strings"

	"train-callbacks/core/callbacks"
)

// EpochReporter exposes the timing of the last epoch dispatch
type EpochReporter interface {
	LastEpochReport() (callbacks.EpochReport, bool)
}

// MetricsExporter exports run metrics in the Prometheus text format
type MetricsExporter struct {
	progress    *ProgressMonitor
	costTracker *CostTracker
	epochs      EpochReporter
}

// NewMetricsExporter creates a new metrics exporter. costTracker and
// epochs may be nil.
func NewMetricsExporter(progress *ProgressMonitor, costTracker *CostTracker, epochs EpochReporter) *MetricsExporter {
	return &MetricsExporter{
		progress:    progress,
		costTracker: costTracker,
		epochs:      epochs,
	}
}

// GetPrometheusMetrics returns metrics in Prometheus format
func (me *MetricsExporter) GetPrometheusMetrics() string {
	var b strings.Builder

	if me.progress != nil {
		p := me.progress.Snapshot()
		runLabel := fmt.Sprintf("{run_id=%q}", p.RunID)

		b.WriteString("# HELP train_steps_total Training steps completed\n")
		b.WriteString("# TYPE train_steps_total counter\n")
		fmt.Fprintf(&b, "train_steps_total%s %d\n", runLabel, p.Steps)

		b.WriteString("# HELP train_epochs_total Epochs completed\n")
		b.WriteString("# TYPE train_epochs_total counter\n")
		fmt.Fprintf(&b, "train_epochs_total%s %d\n", runLabel, p.Epochs)

		b.WriteString("# HELP train_step_cost Cost of the last training step\n")
		b.WriteString("# TYPE train_step_cost gauge\n")
		fmt.Fprintf(&b, "train_step_cost%s %g\n", runLabel, p.LastCost)

		b.WriteString("# HELP train_epoch_cost_mean Mean step cost of the last epoch\n")
		b.WriteString("# TYPE train_epoch_cost_mean gauge\n")
		fmt.Fprintf(&b, "train_epoch_cost_mean%s %g\n", runLabel, p.LastEpochCost)

		b.WriteString("# HELP train_steps_per_second Training throughput\n")
		b.WriteString("# TYPE train_steps_per_second gauge\n")
		fmt.Fprintf(&b, "train_steps_per_second%s %.4f\n", runLabel, p.StepsPerSec)
	}

	if me.costTracker != nil {
		b.WriteString("# HELP train_cost_usd Running compute cost of the run\n")
		b.WriteString("# TYPE train_cost_usd gauge\n")
		fmt.Fprintf(&b, "train_cost_usd %.4f\n", me.costTracker.GetRunningCost())

		if budget := me.costTracker.Budget(); budget > 0 {
			b.WriteString("# HELP train_budget_usd Budget of the run\n")
			b.WriteString("# TYPE train_budget_usd gauge\n")
			fmt.Fprintf(&b, "train_budget_usd %.4f\n", budget)
		}
	}

	if me.epochs != nil {
		if report, ok := me.epochs.LastEpochReport(); ok {
			b.WriteString("# HELP train_callback_epoch_seconds Time each callback spent in the last epoch dispatch\n")
			b.WriteString("# TYPE train_callback_epoch_seconds gauge\n")
			for _, s := range report.Samples {
				fmt.Fprintf(&b, "train_callback_epoch_seconds{callback=%q} %.6f\n", s.Hook, s.Elapsed.Seconds())
			}

			b.WriteString("# HELP train_callbacks_epoch_seconds Total time of the last epoch dispatch\n")
			b.WriteString("# TYPE train_callbacks_epoch_seconds gauge\n")
			fmt.Fprintf(&b, "train_callbacks_epoch_seconds %.6f\n", report.Total.Seconds())

			b.WriteString("# HELP train_callbacks_slow Callbacks flagged slow in the last epoch dispatch\n")
			b.WriteString("# TYPE train_callbacks_slow gauge\n")
			fmt.Fprintf(&b, "train_callbacks_slow %d\n", len(report.Slow))
		}
	}

	return b.String()
}
