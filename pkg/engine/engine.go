// Package engine is the composition root of the care plan subsystem: it
// wires the embedded store, schedule expander, completion engine, sync
// bridge, and urgency classifier into the single surface the application
// shell consumes.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/lifecycle"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/schedule"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/store"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/urgency"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/config"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/database"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// Engine bundles the care plan subsystem behind one handle.
type Engine struct {
	config *config.Config
	logger *logger.Logger
	db     *database.DB

	plans     interfaces.CarePlanRepository
	instances interfaces.InstanceStore
	logs      interfaces.CareLogStore

	expander   *schedule.Expander
	completion *lifecycle.CompletionEngine
	bridge     *lifecycle.SyncBridge
	classifier *urgency.Classifier
}

// New opens the embedded store and wires the engine. registry may be nil
// when the shell attaches no notification registry.
func New(cfg *config.Config, log *logger.Logger, registry interfaces.NotificationRegistry) (*Engine, error) {
	db, err := database.NewConnection(&cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	kv, err := store.NewKV(db, cfg.Storage.RetentionDays, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	e := build(cfg, log,
		store.NewPlanRepository(kv, log),
		store.NewInstanceStore(kv, log),
		store.NewLogStore(kv, log),
		registry,
	)
	e.db = db
	return e, nil
}

// NewWithStores wires the engine over caller-supplied stores. Used by tests
// and by the backup subsystem's restore path.
func NewWithStores(cfg *config.Config, log *logger.Logger, plans interfaces.CarePlanRepository, instances interfaces.InstanceStore, logs interfaces.CareLogStore, registry interfaces.NotificationRegistry) *Engine {
	return build(cfg, log, plans, instances, logs, registry)
}

func build(cfg *config.Config, log *logger.Logger, plans interfaces.CarePlanRepository, instances interfaces.InstanceStore, logs interfaces.CareLogStore, registry interfaces.NotificationRegistry) *Engine {
	var planner *schedule.ReminderPlanner
	if registry != nil {
		planner = schedule.NewReminderPlanner(registry, log)
	}

	completion := lifecycle.NewCompletionEngine(instances, logs, log)

	return &Engine{
		config:     cfg,
		logger:     log,
		plans:      plans,
		instances:  instances,
		logs:       logs,
		expander:   schedule.NewExpander(plans, instances, planner, log),
		completion: completion,
		bridge:     lifecycle.NewSyncBridge(instances, completion, log),
		classifier: urgency.NewClassifier(cfg.Urgency.GraceMinutes, cfg.Urgency.DueSoonMinutes),
	}
}

// Close releases the embedded store. Safe on engines built over external
// stores.
func (e *Engine) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// Plans exposes the care plan repository for the config UI.
func (e *Engine) Plans() interfaces.CarePlanRepository { return e.plans }

// Logs exposes the care log store for history views and backup.
func (e *Engine) Logs() interfaces.CareLogStore { return e.logs }

// EnsureDailyInstances materializes and returns the date's instances.
func (e *Engine) EnsureDailyInstances(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error) {
	return e.expander.EnsureDailyInstances(ctx, patientID, date)
}

// LogInstanceCompletion records an action against one instance.
func (e *Engine) LogInstanceCompletion(ctx context.Context, patientID, date, instanceID string, outcome types.LogOutcome, data map[string]interface{}, opts *types.CompletionOptions) (*types.CompletionResult, error) {
	return e.completion.LogInstanceCompletion(ctx, patientID, date, instanceID, outcome, data, opts)
}

// SyncLogToInstance bridges an ad hoc category log to its scheduled
// occurrence.
func (e *Engine) SyncLogToInstance(ctx context.Context, patientID string, itemType types.CareCategory, date string, data map[string]interface{}, nameHint string) bool {
	return e.bridge.SyncLogToInstance(ctx, patientID, itemType, date, data, nameHint)
}

// Classify exposes the calm-urgency classifier for single signals.
func (e *Engine) Classify(sig types.Signal, now time.Time) types.UrgencyResult {
	return e.classifier.Classify(sig, now)
}

// DashboardWindows returns the date's instances bucketed into day-part
// windows, each window sorted by scheduled time.
func (e *Engine) DashboardWindows(ctx context.Context, patientID, date string) (map[urgency.TimeWindow][]*types.DailyCareInstance, error) {
	instances, err := e.instances.ListDailyInstances(ctx, patientID, date)
	if err != nil {
		return nil, err
	}
	return urgency.GroupByTimeWindow(instances), nil
}

// CategoryDayStats summarizes a date's instances per category, ordered by
// category name for stable display.
func (e *Engine) CategoryDayStats(ctx context.Context, patientID, date string) ([]types.CategoryStats, error) {
	instances, err := e.instances.ListDailyInstances(ctx, patientID, date)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[types.CareCategory]*types.CategoryStats)
	for _, inst := range instances {
		stats, ok := byCategory[inst.ItemType]
		if !ok {
			stats = &types.CategoryStats{Category: inst.ItemType}
			byCategory[inst.ItemType] = stats
		}
		stats.Total++
		switch inst.Status {
		case types.StatusPending:
			stats.Pending++
		case types.StatusCompleted:
			stats.Completed++
		case types.StatusSkipped:
			stats.Skipped++
		case types.StatusMissed:
			stats.Missed++
		}
	}

	out := make([]types.CategoryStats, 0, len(byCategory))
	for _, stats := range byCategory {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// DashboardUrgency classifies a date's pending instances, rolls them up per
// category, and applies the above-fold cap. Categories are visited worst
// first, so the most urgent critical category keeps its tier and later
// criticals are suppressed to attention. The unconstrained classification
// stays queryable on each result's ComputedTier.
func (e *Engine) DashboardUrgency(ctx context.Context, patientID, date string, now time.Time, topSlotCritical bool) ([]urgency.CategoryUrgency, error) {
	instances, err := e.instances.ListDailyInstances(ctx, patientID, date)
	if err != nil {
		return nil, err
	}

	signals := make(map[types.CareCategory][]types.UrgencyResult)
	for _, inst := range instances {
		if inst.Status != types.StatusPending {
			continue
		}
		signals[inst.ItemType] = append(signals[inst.ItemType], e.classifier.Classify(urgency.SignalForInstance(inst), now))
	}

	rollups := make([]urgency.CategoryUrgency, 0, len(signals))
	for category, results := range signals {
		rollups = append(rollups, urgency.AggregateCategory(category, results))
	}
	sort.SliceStable(rollups, func(i, j int) bool {
		return urgency.MoreUrgent(rollups[i].Result, rollups[j].Result)
	})

	fold := types.NewFoldState(topSlotCritical)
	for i := range rollups {
		rollups[i].Result, fold = urgency.ApplyAboveFoldConstraint(rollups[i].Result, fold)
	}

	return rollups, nil
}
