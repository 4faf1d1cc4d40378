package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/store"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

const (
	testPatient = "patient-123"
	testDate    = "2026-03-14"
)

func setupTestExpander() (*Expander, *store.MemoryPlanRepository, *store.MemoryInstanceStore) {
	log := logger.New("debug")
	plans := store.NewMemoryPlanRepository()
	instances := store.NewMemoryInstanceStore()
	return NewExpander(plans, instances, nil, log), plans, instances
}

func saveConfig(t *testing.T, plans *store.MemoryPlanRepository, buckets ...types.BucketConfig) {
	t.Helper()
	err := plans.SaveConfig(context.Background(), &types.CarePlanConfig{
		PatientID: testPatient,
		Version:   1,
		Buckets:   buckets,
	})
	require.NoError(t, err)
}

func vitalsBucket(enabled bool) types.BucketConfig {
	return types.BucketConfig{
		Category: types.CategoryVitals,
		Enabled:  enabled,
		Schedule: types.Schedule{
			Frequency: types.FrequencyDaily,
			Slots:     []types.SlotTime{{Time: "08:00"}},
		},
	}
}

func mealsBucket(enabled bool) types.BucketConfig {
	return types.BucketConfig{
		Category: types.CategoryNutrition,
		Enabled:  enabled,
		Schedule: types.Schedule{
			Frequency: types.FrequencyDaily,
			Slots: []types.SlotTime{
				{Label: "Breakfast", Time: "08:00"},
				{Label: "Lunch", Time: "12:00"},
				{Label: "Dinner", Time: "18:00"},
			},
		},
	}
}

func medsBucket(enabled bool, meds ...types.MedicationDef) types.BucketConfig {
	return types.BucketConfig{
		Category:    types.CategoryMedication,
		Enabled:     enabled,
		Medications: meds,
	}
}

func TestEnsureDailyInstances_NoConfig(t *testing.T) {
	expander, _, _ := setupTestExpander()

	instances, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)

	assert.NoError(t, err)
	assert.Empty(t, instances)
}

func TestEnsureDailyInstances_InvalidDate(t *testing.T) {
	expander, _, _ := setupTestExpander()

	_, err := expander.EnsureDailyInstances(context.Background(), testPatient, "14/03/2026")

	assert.Error(t, err)
}

func TestEnsureDailyInstances_CreatesPlanOfRecordOnce(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	saveConfig(t, plans, vitalsBucket(true))

	_, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)

	plan, err := plans.GetPlan(context.Background(), testPatient)
	require.NoError(t, err)
	require.NotNil(t, plan)

	_, err = expander.EnsureDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)

	again, err := plans.GetPlan(context.Background(), testPatient)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, again.ID)
}

func TestEnsureDailyInstances_MealsExpandToNamedInstances(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	saveConfig(t, plans, mealsBucket(true))

	instances, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)

	require.NoError(t, err)
	require.Len(t, instances, 3)
	assert.Equal(t, "Breakfast", instances[0].ItemName)
	assert.Equal(t, "Lunch", instances[1].ItemName)
	assert.Equal(t, "Dinner", instances[2].ItemName)

	// One configuration unit expands to one item owning all three.
	items, err := plans.ListItems(context.Background(), testPatient)
	require.NoError(t, err)
	require.Len(t, items, 1)
	for _, inst := range instances {
		assert.Equal(t, items[0].ID, inst.ItemID)
		assert.Equal(t, types.StatusPending, inst.Status)
	}
}

func TestEnsureDailyInstances_Idempotent(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	saveConfig(t, plans, vitalsBucket(true), mealsBucket(true))

	first, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, first, 4)

	second, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, second, 4)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestEnsureDailyInstances_ConcurrentCallsNoDuplicates(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	saveConfig(t, plans, mealsBucket(true))

	const callers = 8
	results := make(chan int, callers)
	for i := 0; i < callers; i++ {
		go func() {
			instances, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)
			if err != nil {
				results <- -1
				return
			}
			results <- len(instances)
		}()
	}

	for i := 0; i < callers; i++ {
		assert.Equal(t, 3, <-results)
	}
}

func TestEnsureDailyInstances_ReactivationIdentity(t *testing.T) {
	expander, plans, instances := setupTestExpander()
	ctx := context.Background()

	saveConfig(t, plans, vitalsBucket(true))
	_, err := expander.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)

	items, err := plans.ListItems(ctx, testPatient)
	require.NoError(t, err)
	require.Len(t, items, 1)
	originalID := items[0].ID

	// Disable, regenerate: the item deactivates in place, instances stay.
	saveConfig(t, plans, vitalsBucket(false))
	dayInstances, err := expander.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	assert.Len(t, dayInstances, 1)

	items, err = plans.ListItems(ctx, testPatient)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Active)

	// Re-enable: exactly one item per logical task, same identity.
	saveConfig(t, plans, vitalsBucket(true))
	_, err = expander.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)

	items, err = plans.ListItems(ctx, testPatient)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, originalID, items[0].ID)
	assert.True(t, items[0].Active)

	stored, err := instances.ListDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestEnsureDailyInstances_StatusMonotonicity(t *testing.T) {
	expander, plans, instances := setupTestExpander()
	ctx := context.Background()

	saveConfig(t, plans, vitalsBucket(true))
	first, err := expander.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = instances.UpdateDailyInstanceStatus(ctx, testPatient, testDate, first[0].ID, types.StatusCompleted, "log-1")
	require.NoError(t, err)

	second, err := expander.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, types.StatusCompleted, second[0].Status)
}

func TestEnsureDailyInstances_MedicationRenameKeepsIdentity(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	ctx := context.Background()

	schedule := types.Schedule{
		Frequency: types.FrequencyDaily,
		Slots:     []types.SlotTime{{Time: "09:00"}},
	}
	saveConfig(t, plans, medsBucket(true, types.MedicationDef{ID: "rx-77", Name: "Lisinopril", Schedule: schedule}))

	first, err := expander.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Rename the medication; the correlation id stays stable.
	saveConfig(t, plans, medsBucket(true, types.MedicationDef{ID: "rx-77", Name: "Lisinopril 10mg", Schedule: schedule}))

	second, err := expander.EnsureDailyInstances(ctx, testPatient, testDate)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].ItemID, second[0].ItemID)

	items, err := plans.ListItems(ctx, testPatient)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Lisinopril 10mg", items[0].Name)
	assert.Equal(t, "rx-77", items[0].CorrelationID)
}

func TestEnsureDailyInstances_OneLockPerPatient(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	saveConfig(t, plans, vitalsBucket(true))

	for _, date := range []string{"2026-03-14", "2026-03-15", "2026-03-16"} {
		_, err := expander.EnsureDailyInstances(context.Background(), testPatient, date)
		require.NoError(t, err)
	}

	// The lock table is keyed on patient, so walking dates must not grow it.
	expander.mu.Lock()
	defer expander.mu.Unlock()
	assert.Len(t, expander.locks, 1)
}

func TestEnsureDailyInstances_AsNeededItemsNeverExpand(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	saveConfig(t, plans, types.BucketConfig{
		Category: types.CategoryHydration,
		Enabled:  true,
		Schedule: types.Schedule{Frequency: types.FrequencyAsNeeded},
	})

	instances, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)

	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestEnsureDailyInstances_MalformedSlotSkipped(t *testing.T) {
	expander, plans, _ := setupTestExpander()
	saveConfig(t, plans, types.BucketConfig{
		Category: types.CategoryVitals,
		Enabled:  true,
		Schedule: types.Schedule{
			Frequency: types.FrequencyDaily,
			Slots:     []types.SlotTime{{Time: "25:99"}, {Time: "08:00"}},
		},
	})

	instances, err := expander.EnsureDailyInstances(context.Background(), testPatient, testDate)

	require.NoError(t, err)
	assert.Len(t, instances, 1)
}
