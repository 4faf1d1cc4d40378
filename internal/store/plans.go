package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// PlanRepository persists the care plan config, the plan of record, and the
// item collection. Items live as a single per-patient record list with
// mutable status flags; identity is never recycled.
type PlanRepository struct {
	kv     *KV
	logger *logger.Logger
}

// NewPlanRepository creates a new care plan repository
func NewPlanRepository(kv *KV, log *logger.Logger) interfaces.CarePlanRepository {
	return &PlanRepository{
		kv:     kv,
		logger: log,
	}
}

// GetConfig returns the patient's care plan config, or (nil, nil) when the
// patient has not configured a plan yet.
func (r *PlanRepository) GetConfig(ctx context.Context, patientID string) (*types.CarePlanConfig, error) {
	raw, err := r.kv.Get(ctx, prefixConfig, patientID, "")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var cfg types.CarePlanConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode care plan config for %s: %w", patientID, err)
	}

	return &cfg, nil
}

// SaveConfig stores the patient's care plan config.
func (r *PlanRepository) SaveConfig(ctx context.Context, cfg *types.CarePlanConfig) error {
	cfg.UpdatedAt = time.Now()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode care plan config for %s: %w", cfg.PatientID, err)
	}

	return r.kv.Put(ctx, prefixConfig, cfg.PatientID, "", raw)
}

// GetPlan returns the plan of record, or (nil, nil) when none exists.
func (r *PlanRepository) GetPlan(ctx context.Context, patientID string) (*types.CarePlan, error) {
	raw, err := r.kv.Get(ctx, prefixPlan, patientID, "")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var plan types.CarePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode care plan for %s: %w", patientID, err)
	}

	return &plan, nil
}

// CreatePlan stores a new plan of record. Fails with a conflict error if a
// plan already exists; callers must existence-check, not blindly create.
func (r *PlanRepository) CreatePlan(ctx context.Context, plan *types.CarePlan) error {
	existing, err := r.GetPlan(ctx, plan.PatientID)
	if err != nil {
		return err
	}
	if existing != nil {
		return types.NewConflictError(types.ErrCodeConflict,
			fmt.Sprintf("plan of record already exists for patient %s", plan.PatientID))
	}

	now := time.Now()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode care plan for %s: %w", plan.PatientID, err)
	}

	if err := r.kv.Put(ctx, prefixPlan, plan.PatientID, "", raw); err != nil {
		return err
	}

	r.logger.WithPatientID(plan.PatientID).Infof("Created plan of record %s", plan.ID)
	return nil
}

// ListItems returns all care plan items for the patient, active or not.
func (r *PlanRepository) ListItems(ctx context.Context, patientID string) ([]*types.CarePlanItem, error) {
	raw, err := r.kv.Get(ctx, prefixItems, patientID, "")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var items []*types.CarePlanItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode care plan items for %s: %w", patientID, err)
	}

	return items, nil
}

// SaveItem upserts one item into the patient's item list by id.
func (r *PlanRepository) SaveItem(ctx context.Context, item *types.CarePlanItem) error {
	items, err := r.ListItems(ctx, item.PatientID)
	if err != nil {
		return err
	}

	now := time.Now()
	item.UpdatedAt = now

	replaced := false
	for i, existing := range items {
		if existing.ID == item.ID {
			item.CreatedAt = existing.CreatedAt
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		items = append(items, item)
	}

	return r.saveItems(ctx, item.PatientID, items)
}

// SetItemActive toggles an item's active flag in place. The item record and
// its identity are preserved so existing dated instances keep their owner.
func (r *PlanRepository) SetItemActive(ctx context.Context, patientID, itemID string, active bool) error {
	items, err := r.ListItems(ctx, patientID)
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.ID != itemID {
			continue
		}
		if item.Active == active {
			return nil
		}
		item.Active = active
		item.UpdatedAt = time.Now()

		if err := r.saveItems(ctx, patientID, items); err != nil {
			return err
		}

		r.logger.WithPatientID(patientID).Debugf("Item %s active=%t", itemID, active)
		return nil
	}

	return types.NewNotFoundError(types.ErrCodeNotFound,
		fmt.Sprintf("care plan item not found: %s", itemID))
}

func (r *PlanRepository) saveItems(ctx context.Context, patientID string, items []*types.CarePlanItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode care plan items for %s: %w", patientID, err)
	}

	return r.kv.Put(ctx, prefixItems, patientID, "", raw)
}
