package types

import "time"

// CareCategory identifies a configurable category of care tracking.
type CareCategory string

const (
	CategoryMedication CareCategory = "medication"
	CategoryNutrition  CareCategory = "nutrition"
	CategoryVitals     CareCategory = "vitals"
	CategoryHydration  CareCategory = "hydration"
	CategorySleep      CareCategory = "sleep"
	CategoryActivity   CareCategory = "activity"
	CategoryMood       CareCategory = "mood"
	CategoryCustom     CareCategory = "custom"
)

// AllCategories lists every known care category.
func AllCategories() []CareCategory {
	return []CareCategory{
		CategoryMedication,
		CategoryNutrition,
		CategoryVitals,
		CategoryHydration,
		CategorySleep,
		CategoryActivity,
		CategoryMood,
		CategoryCustom,
	}
}

// Frequency represents how often a scheduled item recurs.
type Frequency string

const (
	// FrequencyDaily expands one instance per slot per day.
	FrequencyDaily Frequency = "daily"
	// FrequencyAsNeeded items carry no slots and never expand to dated
	// instances; they are satisfied through ad hoc logging only.
	FrequencyAsNeeded Frequency = "as_needed"
)

// SlotTime is a single time-of-day slot within a schedule. Time uses the
// 24-hour "15:04" layout. Label is optional and names the occurrence the
// slot produces (e.g. "Breakfast").
type SlotTime struct {
	Label string `json:"label,omitempty"`
	Time  string `json:"time"`
}

// Schedule describes when a care plan item recurs during a day.
type Schedule struct {
	Frequency Frequency  `json:"frequency"`
	Slots     []SlotTime `json:"slots"`
}

// MedicationDef is a medication definition inside the medication bucket.
// ID is the stable external correlation id that survives renames.
type MedicationDef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Dosage   string   `json:"dosage,omitempty"`
	Schedule Schedule `json:"schedule"`
}

// BucketConfig is the per-category configuration unit inside a care plan
// config. Medications is populated for the medication bucket only; every
// other bucket expands from its Schedule alone.
type BucketConfig struct {
	Category    CareCategory    `json:"category"`
	Enabled     bool            `json:"enabled"`
	Schedule    Schedule        `json:"schedule"`
	Medications []MedicationDef `json:"medications,omitempty"`
}

// CarePlanConfig is the user-owned configuration of enabled buckets for one
// patient. Read-only to the scheduler.
type CarePlanConfig struct {
	PatientID string         `json:"patient_id"`
	Version   int            `json:"version"`
	Buckets   []BucketConfig `json:"buckets"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Bucket returns the configuration for a category, or nil if absent.
func (c *CarePlanConfig) Bucket(category CareCategory) *BucketConfig {
	for i := range c.Buckets {
		if c.Buckets[i].Category == category {
			return &c.Buckets[i]
		}
	}
	return nil
}

// CarePlan is the plan of record derived from a config. Created exactly once
// per patient.
type CarePlan struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	ConfigVersion int       `json:"config_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ItemPriority represents the relative priority of a care plan item.
type ItemPriority string

const (
	PriorityHigh   ItemPriority = "high"
	PriorityNormal ItemPriority = "normal"
	PriorityLow    ItemPriority = "low"
)

// CarePlanItem is a concrete, stably-identified, schedulable task derived
// from a bucket's configuration. Identity is permanent: Active toggles
// instead of deleting, so dated instances and history never dangle.
type CarePlanItem struct {
	ID            string       `json:"id" db:"id"`
	PlanID        string       `json:"plan_id" db:"plan_id"`
	PatientID     string       `json:"patient_id" db:"patient_id"`
	Category      CareCategory `json:"category" db:"category"`
	Name          string       `json:"name" db:"name"`
	Priority      ItemPriority `json:"priority" db:"priority"`
	Active        bool         `json:"active" db:"active"`
	Optional      bool         `json:"optional" db:"optional"`
	Schedule      Schedule     `json:"schedule" db:"schedule"`
	CorrelationID string       `json:"correlation_id,omitempty" db:"correlation_id"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// InstanceStatus represents the completion lifecycle state of a daily care
// instance. Transitions are forward-only: pending moves to exactly one
// terminal state and never back.
type InstanceStatus string

const (
	StatusPending   InstanceStatus = "pending"
	StatusCompleted InstanceStatus = "completed"
	StatusSkipped   InstanceStatus = "skipped"
	StatusPartial   InstanceStatus = "partial"
	StatusMissed    InstanceStatus = "missed"
)

// Terminal reports whether the status is a terminal lifecycle state.
func (s InstanceStatus) Terminal() bool {
	return s != StatusPending
}

// DailyCareInstance is one dated occurrence of a CarePlanItem. Created by the
// schedule expander, mutated only by the completion engine.
type DailyCareInstance struct {
	ID            string         `json:"id" db:"id"`
	PatientID     string         `json:"patient_id" db:"patient_id"`
	ItemID        string         `json:"item_id" db:"item_id"`
	ItemType      CareCategory   `json:"item_type" db:"item_type"`
	ItemName      string         `json:"item_name" db:"item_name"`
	Date          string         `json:"date" db:"date"`
	SlotLabel     string         `json:"slot_label,omitempty" db:"slot_label"`
	ScheduledTime time.Time      `json:"scheduled_time" db:"scheduled_time"`
	Optional      bool           `json:"optional" db:"optional"`
	Status        InstanceStatus `json:"status" db:"status"`
	LogEntryID    string         `json:"log_entry_id,omitempty" db:"log_entry_id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// LogOutcome is the recorded outcome of a caregiving action.
type LogOutcome string

const (
	OutcomeTaken     LogOutcome = "taken"
	OutcomeCompleted LogOutcome = "completed"
	OutcomeSkipped   LogOutcome = "skipped"
	OutcomePartial   LogOutcome = "partial"
	OutcomeMissed    LogOutcome = "missed"
)

// StatusForOutcome maps a log outcome to the instance status it produces.
// The second return is false for outcomes outside the fixed table.
func StatusForOutcome(outcome LogOutcome) (InstanceStatus, bool) {
	switch outcome {
	case OutcomeTaken, OutcomeCompleted:
		return StatusCompleted, true
	case OutcomeSkipped:
		return StatusSkipped, true
	case OutcomePartial:
		return StatusPartial, true
	case OutcomeMissed:
		return StatusMissed, true
	default:
		return "", false
	}
}

// LogEntry is an immutable, append-only record of a caregiving action.
// Never mutated after creation.
type LogEntry struct {
	ID         string                 `json:"id"`
	PatientID  string                 `json:"patient_id"`
	Category   CareCategory           `json:"category"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Outcome    LogOutcome             `json:"outcome"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// CompletionOptions carries optional parameters for recording a completion.
type CompletionOptions struct {
	// RecordedAt overrides the log entry timestamp when non-zero.
	RecordedAt time.Time `json:"recorded_at,omitempty"`
	// Source identifies the entry path ("dashboard", "quick_log", ...).
	Source string `json:"source,omitempty"`
}

// CompletionResult pairs the transitioned instance with the log entry that
// resolved it.
type CompletionResult struct {
	Instance *DailyCareInstance `json:"instance"`
	Log      *LogEntry          `json:"log"`
}

// CategoryStats summarizes one category's instances for a date.
type CategoryStats struct {
	Category  CareCategory `json:"category"`
	Total     int          `json:"total"`
	Pending   int          `json:"pending"`
	Completed int          `json:"completed"`
	Skipped   int          `json:"skipped"`
	Missed    int          `json:"missed"`
}

// DateLayout is the canonical day-key layout used across stores.
const DateLayout = "2006-01-02"

// SlotLayout is the 24-hour time-of-day layout used by schedule slots.
const SlotLayout = "15:04"
