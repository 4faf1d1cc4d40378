package types

import "time"

// UrgencyTier is the Calm Urgency classification of an item or category.
type UrgencyTier string

const (
	TierCritical  UrgencyTier = "critical"
	TierAttention UrgencyTier = "attention"
	TierInfo      UrgencyTier = "info"
)

// rank orders tiers with critical first.
func (t UrgencyTier) rank() int {
	switch t {
	case TierCritical:
		return 0
	case TierAttention:
		return 1
	default:
		return 2
	}
}

// WorseThan reports whether t is more urgent than other.
func (t UrgencyTier) WorseThan(other UrgencyTier) bool {
	return t.rank() < other.rank()
}

// UrgencyTone is the visual tone paired with a tier.
type UrgencyTone string

const (
	ToneDanger  UrgencyTone = "danger"
	ToneWarn    UrgencyTone = "warn"
	ToneNeutral UrgencyTone = "neutral"
)

// EscalationClass partitions categories by how far their urgency may
// escalate. The mapping from category to class is total, so a new category
// forces an explicit escalation decision here.
type EscalationClass int

const (
	// ClinicalCritical categories may reach TierCritical.
	ClinicalCritical EscalationClass = iota
	// NonClinical categories are capped at TierAttention.
	NonClinical
	// NeutralLogging categories record data without care-consequence and
	// are likewise capped at TierAttention.
	NeutralLogging
)

// Escalation returns the escalation class for a category.
func (c CareCategory) Escalation() EscalationClass {
	switch c {
	case CategoryMedication, CategoryNutrition:
		return ClinicalCritical
	case CategoryVitals:
		return NeutralLogging
	case CategoryMood, CategoryHydration, CategorySleep, CategoryActivity, CategoryCustom:
		return NonClinical
	default:
		// Unknown categories never escalate past attention.
		return NonClinical
	}
}

// Signal is the classifier's view of one scheduled item.
type Signal struct {
	Category  CareCategory `json:"category"`
	Due       *time.Time   `json:"due,omitempty"`
	Completed bool         `json:"completed"`
	Optional  bool         `json:"optional"`
}

// UrgencyResult is the outcome of classifying one signal. Tier is the
// displayed tier; ComputedTier is the unconstrained classification and stays
// queryable even when above-fold suppression downgrades the display.
type UrgencyResult struct {
	Tier                   UrgencyTier `json:"tier"`
	ComputedTier           UrgencyTier `json:"computed_tier"`
	Tone                   UrgencyTone `json:"tone"`
	Label                  string      `json:"label"`
	Overdue                bool        `json:"overdue"`
	MinutesLate            int         `json:"minutes_late,omitempty"`
	SuppressedFromCritical bool        `json:"suppressed_from_critical,omitempty"`
}

// FoldState is the explicit accumulator for the above-the-fold cap. It is
// threaded by value between constraint applications, never captured as
// hidden mutable state.
type FoldState struct {
	// TopSlotCritical is true when the single most-prominent slot already
	// renders as critical.
	TopSlotCritical bool `json:"top_slot_critical"`
	// CriticalRendered counts critical categories rendered so far.
	CriticalRendered int `json:"critical_rendered"`
	// MaxCritical is the remaining critical budget: 0 when the top slot is
	// already critical, else 1.
	MaxCritical int `json:"max_critical"`
}

// NewFoldState builds the initial fold state for one dashboard render.
func NewFoldState(topSlotCritical bool) FoldState {
	max := 1
	if topSlotCritical {
		max = 0
	}
	return FoldState{TopSlotCritical: topSlotCritical, MaxCritical: max}
}
