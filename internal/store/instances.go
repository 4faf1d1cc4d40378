package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// InstanceStore persists daily care instances as one record per
// (patient, date) under the careinstances prefix.
type InstanceStore struct {
	kv     *KV
	logger *logger.Logger
}

// NewInstanceStore creates a new instance store
func NewInstanceStore(kv *KV, log *logger.Logger) interfaces.InstanceStore {
	return &InstanceStore{
		kv:     kv,
		logger: log,
	}
}

// ListDailyInstances returns a date's instances sorted by scheduled time.
func (s *InstanceStore) ListDailyInstances(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error) {
	instances, err := s.load(ctx, patientID, date)
	if err != nil {
		return nil, err
	}

	sortInstances(instances)
	return instances, nil
}

// ListInstanceDates returns the dates in [fromDate, toDate] that hold
// instances for the patient, via the maintained date index.
func (s *InstanceStore) ListInstanceDates(ctx context.Context, patientID, fromDate, toDate string) ([]string, error) {
	return s.kv.ListDates(ctx, prefixInstances, patientID, fromDate, toDate)
}

// UpsertDailyInstances merges the given instances into the date's stored set
// by instance id. Existing records keep their original CreatedAt, so
// concurrent unrelated writes are not lost to a wholesale overwrite.
func (s *InstanceStore) UpsertDailyInstances(ctx context.Context, patientID, date string, instances []*types.DailyCareInstance) error {
	if len(instances) == 0 {
		return nil
	}

	existing, err := s.load(ctx, patientID, date)
	if err != nil {
		return err
	}

	byID := make(map[string]*types.DailyCareInstance, len(existing))
	for _, inst := range existing {
		byID[inst.ID] = inst
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
	}

	merged := make([]*types.DailyCareInstance, 0, len(byID))
	for _, inst := range byID {
		merged = append(merged, inst)
	}
	sortInstances(merged)

	return s.save(ctx, patientID, date, merged)
}

// UpdateDailyInstanceStatus transitions one instance's status and links the
// resolving log entry. Returns (nil, nil) when the instance id is unknown.
func (s *InstanceStore) UpdateDailyInstanceStatus(ctx context.Context, patientID, date, instanceID string, status types.InstanceStatus, logEntryID string) (*types.DailyCareInstance, error) {
	instances, err := s.load(ctx, patientID, date)
	if err != nil {
		return nil, err
	}

	var updated *types.DailyCareInstance
	for _, inst := range instances {
		if inst.ID != instanceID {
			continue
		}
		inst.Status = status
		if logEntryID != "" {
			inst.LogEntryID = logEntryID
		}
		inst.UpdatedAt = time.Now()
		updated = inst
		break
	}

	if updated == nil {
		return nil, nil
	}

	if err := s.save(ctx, patientID, date, instances); err != nil {
		return nil, err
	}

	s.logger.WithPatientID(patientID).Debugf("Instance %s transitioned to %s", instanceID, status)
	return updated, nil
}

// RemoveStaleInstances prunes instances whose owning item id is not in
// validItemIDs. Items are soft-deleted rather than removed, so stale
// instances only appear after a partial restore or config import.
func (s *InstanceStore) RemoveStaleInstances(ctx context.Context, patientID, date string, validItemIDs []string) (int, error) {
	instances, err := s.load(ctx, patientID, date)
	if err != nil {
		return 0, err
	}

	valid := make(map[string]struct{}, len(validItemIDs))
	for _, id := range validItemIDs {
		valid[id] = struct{}{}
	}

	kept := instances[:0]
	removed := 0
	for _, inst := range instances {
		if _, ok := valid[inst.ItemID]; ok {
			kept = append(kept, inst)
		} else {
			removed++
		}
	}

	if removed == 0 {
		return 0, nil
	}

	if err := s.save(ctx, patientID, date, kept); err != nil {
		return 0, err
	}

	s.logger.WithPatientID(patientID).Infof("Removed %d stale instances for %s", removed, date)
	return removed, nil
}

func (s *InstanceStore) load(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error) {
	raw, err := s.kv.Get(ctx, prefixInstances, patientID, date)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var instances []*types.DailyCareInstance
	if err := json.Unmarshal(raw, &instances); err != nil {
		return nil, fmt.Errorf("failed to decode instances for %s/%s: %w", patientID, date, err)
	}

	return instances, nil
}

func (s *InstanceStore) save(ctx context.Context, patientID, date string, instances []*types.DailyCareInstance) error {
	raw, err := json.Marshal(instances)
	if err != nil {
		return fmt.Errorf("failed to encode instances for %s/%s: %w", patientID, date, err)
	}

	return s.kv.Put(ctx, prefixInstances, patientID, date, raw)
}

func sortInstances(instances []*types.DailyCareInstance) {
	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].ScheduledTime.Equal(instances[j].ScheduledTime) {
			return instances[i].ItemName < instances[j].ItemName
		}
		return instances[i].ScheduledTime.Before(instances[j].ScheduledTime)
	})
}
