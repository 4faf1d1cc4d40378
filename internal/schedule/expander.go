package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// Expander materializes a date's care instances from the recurring plan
// configuration. EnsureDailyInstances is idempotent: overlapping calls for
// the same (patient, date) collapse into one execution, and the write
// section is serialized per patient so check-then-create cannot race into
// duplicate instances.
type Expander struct {
	plans     interfaces.CarePlanRepository
	instances interfaces.InstanceStore
	reminders *ReminderPlanner
	logger    *logger.Logger

	group singleflight.Group

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExpander creates a new schedule expander. reminders may be nil when no
// notification registry is attached.
func NewExpander(plans interfaces.CarePlanRepository, instances interfaces.InstanceStore, reminders *ReminderPlanner, log *logger.Logger) *Expander {
	return &Expander{
		plans:     plans,
		instances: instances,
		reminders: reminders,
		logger:    log,
		locks:     make(map[string]*sync.Mutex),
	}
}

// EnsureDailyInstances returns the date's full instance set sorted by
// scheduled time, creating whatever the plan requires and nothing that
// already exists.
func (e *Expander) EnsureDailyInstances(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error) {
	if _, err := time.ParseInLocation(types.DateLayout, date, time.Local); err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("invalid date: %s", date), nil)
	}

	key := patientID + ":" + date
	result, err, _ := e.group.Do(key, func() (interface{}, error) {
		lock := e.lockFor(patientID)
		lock.Lock()
		defer lock.Unlock()
		return e.expand(ctx, patientID, date)
	})
	if err != nil {
		return nil, err
	}

	return result.([]*types.DailyCareInstance), nil
}

// lockFor keys the write lock on patient, not (patient, date): a device holds
// a handful of patients but an unbounded stream of dates, so per-date entries
// would accumulate for the life of the process.
func (e *Expander) lockFor(patientID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[patientID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[patientID] = lock
	}
	return lock
}

func (e *Expander) expand(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error) {
	cfg, err := e.plans.GetConfig(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load care plan config: %w", err)
	}
	if cfg == nil {
		// Nothing configured yet; the dashboard still gets whatever
		// instances history holds for the date.
		return e.instances.ListDailyInstances(ctx, patientID, date)
	}

	if err := e.ensurePlanOfRecord(ctx, patientID, cfg); err != nil {
		return nil, err
	}

	items, err := e.syncItems(ctx, patientID, cfg)
	if err != nil {
		return nil, err
	}

	created, err := e.materialize(ctx, patientID, date, items)
	if err != nil {
		return nil, err
	}

	itemIDs := make([]string, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	if _, err := e.instances.RemoveStaleInstances(ctx, patientID, date, itemIDs); err != nil {
		return nil, fmt.Errorf("failed to prune stale instances: %w", err)
	}

	// Reminder planning is a secondary sink; failures are logged inside the
	// planner and never surfaced to the expansion caller.
	if e.reminders != nil && len(created) > 0 {
		e.reminders.PlanReminders(ctx, created, time.Now())
	}

	return e.instances.ListDailyInstances(ctx, patientID, date)
}

// ensurePlanOfRecord creates the plan exactly once. Creation is
// existence-checked here and again inside the repository, so a benign
// conflict from an interleaved creation is treated as success.
func (e *Expander) ensurePlanOfRecord(ctx context.Context, patientID string, cfg *types.CarePlanConfig) error {
	plan, err := e.plans.GetPlan(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to load plan of record: %w", err)
	}
	if plan != nil {
		return nil
	}

	plan = &types.CarePlan{
		ID:            uuid.New().String(),
		PatientID:     patientID,
		ConfigVersion: cfg.Version,
	}
	if err := e.plans.CreatePlan(ctx, plan); err != nil {
		if ce, ok := err.(*types.CareError); ok && ce.Type == types.ErrorTypeConflict {
			return nil
		}
		return fmt.Errorf("failed to create plan of record: %w", err)
	}

	e.logger.WithPatientID(patientID).Infof("Created plan of record %s", plan.ID)
	return nil
}

// syncItems reconciles the item list with the config: items for enabled
// buckets are created or reactivated in place, items for disabled or
// removed buckets are deactivated. Nothing is ever deleted, so dated
// instances and the care log keep valid owners. Returns the full item list.
func (e *Expander) syncItems(ctx context.Context, patientID string, cfg *types.CarePlanConfig) ([]*types.CarePlanItem, error) {
	items, err := e.plans.ListItems(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load care plan items: %w", err)
	}

	wanted := make(map[string]struct{})

	for i := range cfg.Buckets {
		bucket := &cfg.Buckets[i]
		if bucket.Category == types.CategoryMedication {
			items, err = e.syncMedicationItems(ctx, patientID, bucket, items, wanted)
		} else {
			items, err = e.syncBucketItem(ctx, patientID, bucket, items, wanted)
		}
		if err != nil {
			return nil, err
		}
	}

	// Deactivate items whose bucket vanished from the config entirely.
	for _, item := range items {
		if _, ok := wanted[item.ID]; ok || !item.Active {
			continue
		}
		if err := e.plans.SetItemActive(ctx, patientID, item.ID, false); err != nil {
			return nil, fmt.Errorf("failed to deactivate item %s: %w", item.ID, err)
		}
		item.Active = false
		e.logger.WithPatientID(patientID).Debugf("Deactivated item %s (%s)", item.ID, item.Category)
	}

	return items, nil
}

// syncMedicationItems matches medication items by their stable correlation
// id, never by display name, so renaming a medication keeps its history and
// dated instances attached to the same item.
func (e *Expander) syncMedicationItems(ctx context.Context, patientID string, bucket *types.BucketConfig, items []*types.CarePlanItem, wanted map[string]struct{}) ([]*types.CarePlanItem, error) {
	for i := range bucket.Medications {
		def := &bucket.Medications[i]

		var item *types.CarePlanItem
		for _, candidate := range items {
			if candidate.Category == types.CategoryMedication && candidate.CorrelationID == def.ID {
				item = candidate
				break
			}
		}

		if item == nil {
			if !bucket.Enabled {
				continue
			}
			item = &types.CarePlanItem{
				ID:            uuid.New().String(),
				PatientID:     patientID,
				Category:      types.CategoryMedication,
				Name:          def.Name,
				Priority:      types.PriorityHigh,
				Active:        true,
				Schedule:      def.Schedule,
				CorrelationID: def.ID,
			}
			if err := e.plans.SaveItem(ctx, item); err != nil {
				return nil, fmt.Errorf("failed to create medication item: %w", err)
			}
			items = append(items, item)
			wanted[item.ID] = struct{}{}
			continue
		}

		if !bucket.Enabled {
			// Leave it to the vanished-bucket pass only if still marked
			// wanted; disabled buckets deactivate their items here.
			if item.Active {
				if err := e.plans.SetItemActive(ctx, patientID, item.ID, false); err != nil {
					return nil, fmt.Errorf("failed to deactivate medication item: %w", err)
				}
				item.Active = false
			}
			wanted[item.ID] = struct{}{}
			continue
		}

		if e.updateItem(item, def.Name, def.Schedule) {
			if err := e.plans.SaveItem(ctx, item); err != nil {
				return nil, fmt.Errorf("failed to update medication item: %w", err)
			}
		}
		wanted[item.ID] = struct{}{}
	}

	return items, nil
}

// syncBucketItem keeps exactly one item per non-medication bucket.
func (e *Expander) syncBucketItem(ctx context.Context, patientID string, bucket *types.BucketConfig, items []*types.CarePlanItem, wanted map[string]struct{}) ([]*types.CarePlanItem, error) {
	var item *types.CarePlanItem
	for _, candidate := range items {
		if candidate.Category == bucket.Category {
			item = candidate
			break
		}
	}

	if item == nil {
		if !bucket.Enabled {
			return items, nil
		}
		item = &types.CarePlanItem{
			ID:        uuid.New().String(),
			PatientID: patientID,
			Category:  bucket.Category,
			Name:      displayName(bucket.Category),
			Priority:  types.PriorityNormal,
			Active:    true,
			Schedule:  bucket.Schedule,
		}
		if err := e.plans.SaveItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to create %s item: %w", bucket.Category, err)
		}
		items = append(items, item)
		wanted[item.ID] = struct{}{}
		return items, nil
	}

	if !bucket.Enabled {
		if item.Active {
			if err := e.plans.SetItemActive(ctx, patientID, item.ID, false); err != nil {
				return nil, fmt.Errorf("failed to deactivate %s item: %w", bucket.Category, err)
			}
			item.Active = false
		}
		wanted[item.ID] = struct{}{}
		return items, nil
	}

	if e.updateItem(item, item.Name, bucket.Schedule) {
		if err := e.plans.SaveItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to update %s item: %w", bucket.Category, err)
		}
	}
	wanted[item.ID] = struct{}{}
	return items, nil
}

// updateItem reactivates an item in place and syncs its name and schedule
// from config. Returns true when the item changed.
func (e *Expander) updateItem(item *types.CarePlanItem, name string, schedule types.Schedule) bool {
	changed := false
	if !item.Active {
		item.Active = true
		changed = true
	}
	if name != "" && item.Name != name {
		item.Name = name
		changed = true
	}
	if !schedulesEqual(item.Schedule, schedule) {
		item.Schedule = schedule
		changed = true
	}
	return changed
}

// materialize creates the pending instances the active items require for
// the date. An instance is created only when none exists for that
// (item, slot, date) triple; existing instances keep their status, so a
// repeat expansion can never move a resolved occurrence back to pending.
func (e *Expander) materialize(ctx context.Context, patientID, date string, items []*types.CarePlanItem) ([]*types.DailyCareInstance, error) {
	existing, err := e.instances.ListDailyInstances(ctx, patientID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing instances: %w", err)
	}

	type slotKey struct {
		itemID string
		at     int64
	}
	seen := make(map[slotKey]struct{}, len(existing))
	for _, inst := range existing {
		seen[slotKey{inst.ItemID, inst.ScheduledTime.Unix()}] = struct{}{}
	}

	day, _ := time.ParseInLocation(types.DateLayout, date, time.Local)

	var created []*types.DailyCareInstance
	for _, item := range items {
		if !item.Active || item.Schedule.Frequency == types.FrequencyAsNeeded {
			continue
		}

		for _, slot := range item.Schedule.Slots {
			at, err := slotTime(day, slot.Time)
			if err != nil {
				e.logger.WithPatientID(patientID).Warnf("Skipping malformed slot %q on item %s: %v", slot.Time, item.ID, err)
				continue
			}

			key := slotKey{item.ID, at.Unix()}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			name := item.Name
			if slot.Label != "" && item.Category != types.CategoryMedication {
				name = slot.Label
			}

			created = append(created, &types.DailyCareInstance{
				ID:            uuid.New().String(),
				PatientID:     patientID,
				ItemID:        item.ID,
				ItemType:      item.Category,
				ItemName:      name,
				Date:          date,
				SlotLabel:     slot.Label,
				ScheduledTime: at,
				Optional:      item.Optional,
				Status:        types.StatusPending,
			})
		}
	}

	if len(created) == 0 {
		return nil, nil
	}

	if err := e.instances.UpsertDailyInstances(ctx, patientID, date, created); err != nil {
		return nil, fmt.Errorf("failed to store instances: %w", err)
	}

	e.logger.WithPatientID(patientID).WithField("date", date).Infof("Materialized %d new instances", len(created))
	return created, nil
}

func slotTime(day time.Time, slot string) (time.Time, error) {
	t, err := time.Parse(types.SlotLayout, slot)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func schedulesEqual(a, b types.Schedule) bool {
	if a.Frequency != b.Frequency || len(a.Slots) != len(b.Slots) {
		return false
	}
	for i := range a.Slots {
		if a.Slots[i] != b.Slots[i] {
			return false
		}
	}
	return true
}

func displayName(category types.CareCategory) string {
	switch category {
	case types.CategoryNutrition:
		return "Meal"
	case types.CategoryVitals:
		return "Vitals check"
	case types.CategoryHydration:
		return "Hydration"
	case types.CategorySleep:
		return "Sleep log"
	case types.CategoryActivity:
		return "Activity"
	case types.CategoryMood:
		return "Mood check-in"
	default:
		return "Care task"
	}
}
