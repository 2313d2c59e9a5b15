package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"train-callbacks/core/callbacks"
	"train-callbacks/core/models"
)

// ErrBudgetExceeded aborts a run whose running cost reached its budget
var ErrBudgetExceeded = errors.New("budget exceeded")

const budgetWarnShare = 0.9

// PriceSource resolves the hourly price of an instance type
type PriceSource interface {
	GetInstancePrice(ctx context.Context, instanceType, region string) (models.GPUInstance, error)
}

// StaticPriceSource serves prices from a fixed catalog
type StaticPriceSource map[string]models.GPUInstance

// GetInstancePrice returns the catalog entry for instanceType
func (s StaticPriceSource) GetInstancePrice(ctx context.Context, instanceType, region string) (models.GPUInstance, error) {
	instance, ok := s[instanceType]
	if !ok {
		return models.GPUInstance{}, fmt.Errorf("no price for instance type %s", instanceType)
	}
	if instance.Region == "" {
		instance.Region = region
	}
	return instance, nil
}

// CostTrackerConfig configures a CostTracker
type CostTrackerConfig struct {
	InstanceType string
	Region       string
	Count        int
	Spot         bool
	BudgetUSD    float64 // Zero disables budget enforcement
}

// CostTracker is a training hook that accrues the run's compute cost once
// per epoch and appends it to the run's summaries. It fails the epoch once
// the budget is used up.
type CostTracker struct {
	callbacks.Base
	source PriceSource
	config CostTrackerConfig
	clock  callbacks.Clock
	logger *log.Logger

	mu          sync.RWMutex
	price       float64 // USD per hour for all instances
	runningCost float64
	lastUpdate  time.Time
	epoch       int
	warned      bool

	runID   string
	summary callbacks.SummaryChannel
}

// NewCostTracker creates a new cost tracker
func NewCostTracker(source PriceSource, config CostTrackerConfig, clock callbacks.Clock) *CostTracker {
	if config.Count <= 0 {
		config.Count = 1
	}
	if clock == nil {
		clock = callbacks.SystemClock()
	}
	return &CostTracker{
		source: source,
		config: config,
		clock:  clock,
	}
}

// BeforeTrain resolves the hourly price and starts the meter
func (ct *CostTracker) BeforeTrain(ctx context.Context, tc *callbacks.TrainContext) error {
	instance, err := ct.source.GetInstancePrice(ctx, ct.config.InstanceType, ct.config.Region)
	if err != nil {
		return fmt.Errorf("failed to resolve price for %s: %w", ct.config.InstanceType, err)
	}

	summary, ok := tc.SummaryChannel()
	if !ok {
		return &callbacks.ConfigurationError{Reason: "cost tracker needs the summary channel"}
	}

	ct.logger = tc.Logger
	if ct.logger == nil {
		ct.logger = log.Default()
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.price = instance.HourlyPrice(ct.config.Spot) * float64(ct.config.Count)
	ct.lastUpdate = ct.clock.Now()
	ct.runID = tc.RunID
	ct.summary = summary
	return nil
}

// TriggerEpoch accrues cost since the last epoch and checks the budget
func (ct *CostTracker) TriggerEpoch(ctx context.Context) error {
	ct.mu.Lock()
	now := ct.clock.Now()
	deltaHours := now.Sub(ct.lastUpdate).Hours()
	ct.runningCost += ct.price * deltaHours
	ct.lastUpdate = now
	ct.epoch++
	cost, price, epoch := ct.runningCost, ct.price, ct.epoch
	ct.mu.Unlock()

	err := ct.summary.AddSummary(ctx, models.SummaryRecord{
		RunID: ct.runID,
		Epoch: epoch,
		Scalars: map[string]float64{
			"cost_usd":       cost,
			"price_per_hour": price,
		},
		WallTime: now,
	})
	if err != nil {
		return err
	}

	return ct.checkBudget(cost)
}

// checkBudget warns once at 90% of the budget and fails at 100%
func (ct *CostTracker) checkBudget(cost float64) error {
	budget := ct.config.BudgetUSD
	if budget <= 0 {
		return nil
	}

	usage := cost / budget
	if usage >= 1.0 {
		ct.logger.Printf("ERROR: Run %s exceeded budget (%.2f / %.2f USD)", ct.runID, cost, budget)
		return fmt.Errorf("%w: %.2f / %.2f USD", ErrBudgetExceeded, cost, budget)
	}
	if usage >= budgetWarnShare && !ct.warned {
		ct.warned = true
		ct.logger.Printf("WARNING: Run %s has used %.1f%% of budget (%.2f / %.2f USD)",
			ct.runID, usage*100, cost, budget)
	}
	return nil
}

// GetRunningCost returns the cost accrued up to the last epoch
func (ct *CostTracker) GetRunningCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.runningCost
}

// PricePerHour returns the resolved hourly price of all instances
func (ct *CostTracker) PricePerHour() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.price
}

// Budget returns the configured budget
func (ct *CostTracker) Budget() float64 {
	return ct.config.BudgetUSD
}
