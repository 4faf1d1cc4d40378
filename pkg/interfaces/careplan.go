package interfaces

import (
	"context"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// CarePlanRepository defines the interface for plan-of-record and item
// persistence. Items are soft-deleted: SetItemActive toggles, nothing is
// ever removed, so dated instances keep a valid owner.
type CarePlanRepository interface {
	// Config (user-owned, read-only to the scheduler)
	GetConfig(ctx context.Context, patientID string) (*types.CarePlanConfig, error)
	SaveConfig(ctx context.Context, cfg *types.CarePlanConfig) error

	// Plan of record
	GetPlan(ctx context.Context, patientID string) (*types.CarePlan, error)
	CreatePlan(ctx context.Context, plan *types.CarePlan) error

	// Items
	ListItems(ctx context.Context, patientID string) ([]*types.CarePlanItem, error)
	SaveItem(ctx context.Context, item *types.CarePlanItem) error
	SetItemActive(ctx context.Context, patientID, itemID string, active bool) error
}

// InstanceStore defines the interface for dated occurrence persistence,
// indexed by patient and date.
type InstanceStore interface {
	ListDailyInstances(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error)
	ListInstanceDates(ctx context.Context, patientID, fromDate, toDate string) ([]string, error)

	// UpsertDailyInstances merges by instance id, preserving each original
	// CreatedAt, rather than overwriting the date's set wholesale.
	UpsertDailyInstances(ctx context.Context, patientID, date string, instances []*types.DailyCareInstance) error

	// UpdateDailyInstanceStatus transitions one instance. Returns (nil, nil)
	// when the instance id is unknown.
	UpdateDailyInstanceStatus(ctx context.Context, patientID, date, instanceID string, status types.InstanceStatus, logEntryID string) (*types.DailyCareInstance, error)

	// RemoveStaleInstances prunes instances whose owning item id is not in
	// validItemIDs. Returns the number removed.
	RemoveStaleInstances(ctx context.Context, patientID, date string, validItemIDs []string) (int, error)
}

// CareLogStore defines the interface for the immutable care log. Entries are
// append-only and write-once.
type CareLogStore interface {
	AppendLogEntry(ctx context.Context, entry *types.LogEntry) error
	ListLogEntries(ctx context.Context, patientID, date string) ([]*types.LogEntry, error)
}

// ScheduleExpander materializes a date's occurrences from the recurring plan.
type ScheduleExpander interface {
	// EnsureDailyInstances is idempotent: repeated calls for the same
	// (patient, date, config state) have no side effects beyond the first.
	EnsureDailyInstances(ctx context.Context, patientID, date string) ([]*types.DailyCareInstance, error)
}

// CompletionEngine records a caregiving action and transitions an occurrence.
type CompletionEngine interface {
	// LogInstanceCompletion returns (nil, nil) when instanceID is unknown;
	// that is an expected race, not a failure.
	LogInstanceCompletion(ctx context.Context, patientID, date, instanceID string, outcome types.LogOutcome, data map[string]interface{}, opts *types.CompletionOptions) (*types.CompletionResult, error)
}

// LogSyncBridge maps free-form category logging to the matching pending
// occurrence. Best-effort: internal errors are swallowed and reported as a
// false return, never as an error.
type LogSyncBridge interface {
	SyncLogToInstance(ctx context.Context, patientID string, itemType types.CareCategory, date string, data map[string]interface{}, nameHint string) bool
}

// NotificationRegistry receives scheduling requests derived from generated
// instances. It enforces its own past-time guard and performs OS-level
// delivery; from this subsystem's perspective it is a pure sink.
type NotificationRegistry interface {
	ScheduleReminder(ctx context.Context, instance *types.DailyCareInstance, at time.Time) error
	CancelReminder(ctx context.Context, instanceID string) error
}
