package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/store"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/urgency"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/config"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

const (
	testPatient = "patient-123"
	testDate    = "2026-03-14"
)

func setupTestEngine() (*Engine, *store.MemoryInstanceStore) {
	instances := store.NewMemoryInstanceStore()
	e := NewWithStores(
		config.Default(),
		logger.New("debug"),
		store.NewMemoryPlanRepository(),
		instances,
		store.NewMemoryLogStore(),
		nil,
	)
	return e, instances
}

func saveTestConfig(t *testing.T, e *Engine) {
	t.Helper()
	err := e.Plans().SaveConfig(context.Background(), &types.CarePlanConfig{
		PatientID: testPatient,
		Version:   1,
		Buckets: []types.BucketConfig{
			{
				Category: types.CategoryVitals,
				Enabled:  true,
				Schedule: types.Schedule{
					Frequency: types.FrequencyDaily,
					Slots:     []types.SlotTime{{Time: "08:00"}},
				},
			},
			{
				Category: types.CategoryNutrition,
				Enabled:  true,
				Schedule: types.Schedule{
					Frequency: types.FrequencyDaily,
					Slots: []types.SlotTime{
						{Label: "Breakfast", Time: "08:00"},
						{Label: "Lunch", Time: "12:00"},
						{Label: "Dinner", Time: "18:00"},
					},
				},
			},
		},
	})
	require.NoError(t, err)
}

func TestEngine_ExpandThenQuickLog(t *testing.T) {
	e, _ := setupTestEngine()
	ctx := context.Background()
	saveTestConfig(t, e)

	instances, err := e.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, instances, 4)
	for _, inst := range instances {
		assert.Equal(t, types.StatusPending, inst.Status)
	}

	// Quick-log vitals plus one named meal from the log screen.
	assert.True(t, e.SyncLogToInstance(ctx, testPatient, types.CategoryVitals, testDate, nil, ""))
	assert.True(t, e.SyncLogToInstance(ctx, testPatient, types.CategoryNutrition, testDate, nil, "Breakfast"))

	instances, err = e.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, instances, 4)

	completed := 0
	pending := 0
	for _, inst := range instances {
		switch inst.Status {
		case types.StatusCompleted:
			completed++
		case types.StatusPending:
			pending++
		}
	}
	assert.Equal(t, 2, completed)
	assert.Equal(t, 2, pending)

	// Each completion wrote exactly one log entry, keyed by the day it was
	// recorded.
	entries, err := e.Logs().ListLogEntries(ctx, testPatient, time.Now().Format(types.DateLayout))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEngine_CategoryDayStats(t *testing.T) {
	e, _ := setupTestEngine()
	ctx := context.Background()
	saveTestConfig(t, e)

	instances, err := e.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, instances, 4)

	require.True(t, e.SyncLogToInstance(ctx, testPatient, types.CategoryNutrition, testDate, nil, "Lunch"))

	stats, err := e.CategoryDayStats(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byCategory := make(map[types.CareCategory]types.CategoryStats)
	for _, s := range stats {
		byCategory[s.Category] = s
	}

	nutrition := byCategory[types.CategoryNutrition]
	assert.Equal(t, 3, nutrition.Total)
	assert.Equal(t, 1, nutrition.Completed)
	assert.Equal(t, 2, nutrition.Pending)

	vitals := byCategory[types.CategoryVitals]
	assert.Equal(t, 1, vitals.Total)
	assert.Equal(t, 1, vitals.Pending)
}

func TestEngine_DashboardWindows(t *testing.T) {
	e, instances := setupTestEngine()

	seedPending(t, instances, "vitals", types.CategoryVitals, time.Date(2026, 3, 14, 8, 0, 0, 0, time.Local))
	seedPending(t, instances, "dinner", types.CategoryNutrition, time.Date(2026, 3, 14, 18, 0, 0, 0, time.Local))
	seedPending(t, instances, "night-meds", types.CategoryMedication, time.Date(2026, 3, 14, 23, 30, 0, 0, time.Local))

	windows, err := e.DashboardWindows(context.Background(), testPatient, testDate)
	require.NoError(t, err)

	assert.Len(t, windows[urgency.WindowMorning], 1)
	assert.Len(t, windows[urgency.WindowEvening], 1)
	assert.Len(t, windows[urgency.WindowNight], 1)
	assert.Empty(t, windows[urgency.WindowAfternoon])
}

func seedPending(t *testing.T, instances *store.MemoryInstanceStore, id string, category types.CareCategory, scheduled time.Time) {
	t.Helper()
	err := instances.UpsertDailyInstances(context.Background(), testPatient, testDate, []*types.DailyCareInstance{{
		ID:            id,
		PatientID:     testPatient,
		ItemID:        "item-" + id,
		ItemType:      category,
		ItemName:      id,
		Date:          testDate,
		ScheduledTime: scheduled,
		Status:        types.StatusPending,
	}})
	require.NoError(t, err)
}

func TestEngine_DashboardUrgencyFold(t *testing.T) {
	e, instances := setupTestEngine()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	// Two clinical-critical categories well past the grace period; only the
	// worst may render critical.
	seedPending(t, instances, "meds", types.CategoryMedication, now.Add(-3*time.Hour))
	seedPending(t, instances, "breakfast", types.CategoryNutrition, now.Add(-2*time.Hour))
	seedPending(t, instances, "walk", types.CategoryActivity, now.Add(-2*time.Hour))

	rollups, err := e.DashboardUrgency(context.Background(), testPatient, testDate, now, false)
	require.NoError(t, err)
	require.Len(t, rollups, 3)

	assert.Equal(t, types.CategoryMedication, rollups[0].Category)
	assert.Equal(t, types.TierCritical, rollups[0].Result.Tier)
	assert.Equal(t, urgency.LabelLate, rollups[0].Result.Label)

	assert.Equal(t, types.CategoryNutrition, rollups[1].Category)
	assert.Equal(t, types.TierAttention, rollups[1].Result.Tier)
	assert.Equal(t, urgency.LabelPending, rollups[1].Result.Label)
	assert.True(t, rollups[1].Result.SuppressedFromCritical)
	// The unconstrained classification stays queryable.
	assert.Equal(t, types.TierCritical, rollups[1].Result.ComputedTier)

	// Activity never escalates past attention regardless of lateness.
	assert.Equal(t, types.TierAttention, rollups[2].Result.Tier)
	assert.False(t, rollups[2].Result.SuppressedFromCritical)
}

func TestEngine_DashboardUrgencyTopSlotAlreadyCritical(t *testing.T) {
	e, instances := setupTestEngine()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	seedPending(t, instances, "meds", types.CategoryMedication, now.Add(-3*time.Hour))

	rollups, err := e.DashboardUrgency(context.Background(), testPatient, testDate, now, true)
	require.NoError(t, err)
	require.Len(t, rollups, 1)

	// The critical budget is spent by the top slot: everything else drops to
	// attention.
	assert.Equal(t, types.TierAttention, rollups[0].Result.Tier)
	assert.True(t, rollups[0].Result.SuppressedFromCritical)
	assert.Equal(t, types.TierCritical, rollups[0].Result.ComputedTier)
}
