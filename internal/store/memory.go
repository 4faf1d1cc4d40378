package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// In-memory implementations of the store contracts. Used by tests and by the
// backup subsystem's restore path, which rebuilds state before swapping the
// embedded database in.

// MemoryPlanRepository is an in-memory CarePlanRepository.
type MemoryPlanRepository struct {
	mu      sync.RWMutex
	configs map[string]*types.CarePlanConfig
	plans   map[string]*types.CarePlan
	items   map[string][]*types.CarePlanItem
}

// NewMemoryPlanRepository creates an empty in-memory plan repository.
func NewMemoryPlanRepository() *MemoryPlanRepository {
	return &MemoryPlanRepository{
		configs: make(map[string]*types.CarePlanConfig),
		plans:   make(map[string]*types.CarePlan),
		items:   make(map[string][]*types.CarePlanItem),
	}
}

func (r *MemoryPlanRepository) GetConfig(ctx context.Context, patientID string) (*types.CarePlanConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[patientID], nil
}

func (r *MemoryPlanRepository) SaveConfig(ctx context.Context, cfg *types.CarePlanConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.UpdatedAt = time.Now()
	r.configs[cfg.PatientID] = cfg
	return nil
}

func (r *MemoryPlanRepository) GetPlan(ctx context.Context, patientID string) (*types.CarePlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plans[patientID], nil
}

func (r *MemoryPlanRepository) CreatePlan(ctx context.Context, plan *types.CarePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[plan.PatientID]; ok {
		return types.NewConflictError(types.ErrCodeConflict,
			fmt.Sprintf("plan of record already exists for patient %s", plan.PatientID))
	}
	now := time.Now()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	r.plans[plan.PatientID] = plan
	return nil
}

func (r *MemoryPlanRepository) ListItems(ctx context.Context, patientID string) ([]*types.CarePlanItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*types.CarePlanItem(nil), r.items[patientID]...), nil
}

func (r *MemoryPlanRepository) SaveItem(ctx context.Context, item *types.CarePlanItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	item.UpdatedAt = now

	items := r.items[item.PatientID]
	for i, existing := range items {
		if existing.ID == item.ID {
			item.CreatedAt = existing.CreatedAt
			items[i] = item
			return nil
		}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	r.items[item.PatientID] = append(items, item)
	return nil
}

func (r *MemoryPlanRepository) SetItemActive(ctx context.Context, patientID, itemID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range r.items[patientID] {
		if item.ID == itemID {
			item.Active = active
			item.UpdatedAt = time.Now()
			return nil
		}
	}
	return types.NewNotFoundError(types.ErrCodeNotFound,
		fmt.Sprintf("care plan item not found: %s", itemID))
}

// MemoryInstanceStore is an in-memory InstanceStore keyed by patient:date.
type MemoryInstanceStore struct {
	mu        sync.RWMutex
	instances map[string][]*types.DailyCareInstance
}

// NewMemoryInstanceStore creates an empty in-memory instance store.
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		instances: make(map[string][]*types.DailyCareInstance),
	}
}

func dayKey(patientID, date string) string {
	return patientID + ":" + date
}

func (s *MemoryInstanceStore) ListDailyInstances(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]*types.DailyCareInstance(nil), s.instances[dayKey(patientID, date)]...)
	sortInstances(out)
	return out, nil
}

func (s *MemoryInstanceStore) ListInstanceDates(ctx context.Context, patientID, fromDate, toDate string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dates []string
	for key, instances := range s.instances {
		if len(instances) == 0 {
			continue
		}
		date := instances[0].Date
		if key == dayKey(patientID, date) && date >= fromDate && date <= toDate {
			dates = append(dates, date)
		}
	}
	return dates, nil
}

func (s *MemoryInstanceStore) UpsertDailyInstances(ctx context.Context, patientID, date string, instances []*types.DailyCareInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(patientID, date)
	byID := make(map[string]*types.DailyCareInstance)
	order := []string{}
	for _, inst := range s.instances[key] {
		byID[inst.ID] = inst
		order = append(order, inst.ID)
	}

	now := time.Now()
	for _, inst := range instances {
		if prev, ok := byID[inst.ID]; ok {
			merged := *inst
			merged.CreatedAt = prev.CreatedAt
			merged.UpdatedAt = now
			byID[inst.ID] = &merged
			continue
		}
		added := *inst
		if added.CreatedAt.IsZero() {
			added.CreatedAt = now
		}
		added.UpdatedAt = now
		byID[added.ID] = &added
		order = append(order, added.ID)
	}

	merged := make([]*types.DailyCareInstance, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	s.instances[key] = merged
	return nil
}

func (s *MemoryInstanceStore) UpdateDailyInstanceStatus(ctx context.Context, patientID, date, instanceID string, status types.InstanceStatus, logEntryID string) (*types.DailyCareInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range s.instances[dayKey(patientID, date)] {
		if inst.ID != instanceID {
			continue
		}
		inst.Status = status
		if logEntryID != "" {
			inst.LogEntryID = logEntryID
		}
		inst.UpdatedAt = time.Now()
		return inst, nil
	}
	return nil, nil
}

func (s *MemoryInstanceStore) RemoveStaleInstances(ctx context.Context, patientID, date string, validItemIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := make(map[string]struct{}, len(validItemIDs))
	for _, id := range validItemIDs {
		valid[id] = struct{}{}
	}

	key := dayKey(patientID, date)
	kept := make([]*types.DailyCareInstance, 0, len(s.instances[key]))
	removed := 0
	for _, inst := range s.instances[key] {
		if _, ok := valid[inst.ItemID]; ok {
			kept = append(kept, inst)
		} else {
			removed++
		}
	}
	s.instances[key] = kept
	return removed, nil
}

// MemoryLogStore is an in-memory, append-only CareLogStore.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries map[string][]*types.LogEntry

	// FailAppend forces the next append to fail, for atomicity tests.
	FailAppend bool
}

// NewMemoryLogStore creates an empty in-memory log store.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{
		entries: make(map[string][]*types.LogEntry),
	}
}

func (s *MemoryLogStore) AppendLogEntry(ctx context.Context, entry *types.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppend {
		return types.NewStorageError(types.ErrCodeStorageFailure, "log write failed", nil)
	}

	key := dayKey(entry.PatientID, entry.Timestamp.Format(types.DateLayout))
	for _, existing := range s.entries[key] {
		if existing.ID == entry.ID {
			return types.NewConflictError(types.ErrCodeImmutableRecord,
				fmt.Sprintf("log entry already recorded: %s", entry.ID))
		}
	}
	s.entries[key] = append(s.entries[key], entry)
	return nil
}

func (s *MemoryLogStore) ListLogEntries(ctx context.Context, patientID, date string) ([]*types.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*types.LogEntry(nil), s.entries[dayKey(patientID, date)]...), nil
}
