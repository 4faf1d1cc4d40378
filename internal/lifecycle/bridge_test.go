package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/internal/store"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

func setupTestBridge(t *testing.T, now time.Time) (*SyncBridge, *store.MemoryInstanceStore) {
	t.Helper()
	log := logger.New("debug")
	instances := store.NewMemoryInstanceStore()
	completion := NewCompletionEngine(instances, store.NewMemoryLogStore(), log)
	bridge := NewSyncBridge(instances, completion, log)
	bridge.now = func() time.Time { return now }
	return bridge, instances
}

func seedMeal(t *testing.T, instances *store.MemoryInstanceStore, id, name string, scheduled time.Time) {
	t.Helper()
	inst := &types.DailyCareInstance{
		ID:            id,
		PatientID:     testPatient,
		ItemID:        "item-meals",
		ItemType:      types.CategoryNutrition,
		ItemName:      name,
		Date:          testDate,
		ScheduledTime: scheduled,
		Status:        types.StatusPending,
	}
	require.NoError(t, instances.UpsertDailyInstances(context.Background(), testPatient, testDate, []*types.DailyCareInstance{inst}))
}

func TestSyncLogToInstance_NoPendingCandidates(t *testing.T) {
	bridge, _ := setupTestBridge(t, dayTime(11, 0))

	ok := bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryNutrition, testDate, nil, "")

	// Logging without an active plan slot is valid, not an error.
	assert.False(t, ok)
}

func TestSyncLogToInstance_DueOutranksFuture(t *testing.T) {
	bridge, instances := setupTestBridge(t, dayTime(11, 0))
	seedMeal(t, instances, "breakfast", "Breakfast", dayTime(8, 0))
	seedMeal(t, instances, "lunch", "Lunch", dayTime(12, 0))

	ok := bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryNutrition, testDate, nil, "")

	assert.True(t, ok)

	stored, err := instances.ListDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)
	// Breakfast is already due; it wins over the closer-by-clock Lunch.
	assert.Equal(t, types.StatusCompleted, stored[0].Status)
	assert.Equal(t, "Breakfast", stored[0].ItemName)
	assert.Equal(t, types.StatusPending, stored[1].Status)
}

func TestSyncLogToInstance_ClosestOverdueWins(t *testing.T) {
	bridge, instances := setupTestBridge(t, dayTime(13, 0))
	seedMeal(t, instances, "breakfast", "Breakfast", dayTime(8, 0))
	seedMeal(t, instances, "lunch", "Lunch", dayTime(12, 0))

	ok := bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryNutrition, testDate, nil, "")

	assert.True(t, ok)

	stored, err := instances.ListDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, stored[0].Status)
	assert.Equal(t, types.StatusCompleted, stored[1].Status)
	assert.Equal(t, "Lunch", stored[1].ItemName)
}

func TestSyncLogToInstance_NameHintWins(t *testing.T) {
	bridge, instances := setupTestBridge(t, dayTime(11, 0))
	seedMeal(t, instances, "breakfast", "Breakfast", dayTime(8, 0))
	seedMeal(t, instances, "lunch", "Lunch", dayTime(12, 0))

	ok := bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryNutrition, testDate, nil, "lunch")

	assert.True(t, ok)

	stored, err := instances.ListDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, stored[0].Status)
	assert.Equal(t, types.StatusCompleted, stored[1].Status)
}

func TestSyncLogToInstance_UnmatchedHintFallsBackToScoring(t *testing.T) {
	bridge, instances := setupTestBridge(t, dayTime(11, 0))
	seedMeal(t, instances, "breakfast", "Breakfast", dayTime(8, 0))
	seedMeal(t, instances, "lunch", "Lunch", dayTime(12, 0))

	ok := bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryNutrition, testDate, nil, "Brunch")

	assert.True(t, ok)

	stored, err := instances.ListDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, stored[0].Status)
}

func TestSyncLogToInstance_Idempotence(t *testing.T) {
	bridge, instances := setupTestBridge(t, dayTime(11, 0))
	seedMeal(t, instances, "breakfast", "Breakfast", dayTime(8, 0))

	assert.True(t, bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryNutrition, testDate, nil, ""))
	// Fully satisfied: the second call finds zero pending candidates.
	assert.False(t, bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryNutrition, testDate, nil, ""))
}

func TestSyncLogToInstance_OtherCategoriesUntouched(t *testing.T) {
	bridge, instances := setupTestBridge(t, dayTime(11, 0))
	seedMeal(t, instances, "breakfast", "Breakfast", dayTime(8, 0))
	require.NoError(t, instances.UpsertDailyInstances(context.Background(), testPatient, testDate, []*types.DailyCareInstance{{
		ID:            "vitals",
		PatientID:     testPatient,
		ItemID:        "item-vitals",
		ItemType:      types.CategoryVitals,
		ItemName:      "Vitals check",
		Date:          testDate,
		ScheduledTime: dayTime(8, 0),
		Status:        types.StatusPending,
	}}))

	ok := bridge.SyncLogToInstance(context.Background(), testPatient, types.CategoryVitals, testDate, nil, "")

	assert.True(t, ok)

	stored, err := instances.ListDailyInstances(context.Background(), testPatient, testDate)
	require.NoError(t, err)
	for _, inst := range stored {
		if inst.ItemType == types.CategoryNutrition {
			assert.Equal(t, types.StatusPending, inst.Status)
		}
	}
}
