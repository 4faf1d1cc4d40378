package urgency

import (
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// Classifier applies the calm-urgency policy: three tiers, a grace period
// before clinical escalation, and a hard cap at attention for everything
// outside the clinical-critical escalation class.
type Classifier struct {
	grace   time.Duration
	dueSoon time.Duration
}

// NewClassifier creates a classifier with the given grace period and
// due-soon lookahead, both in minutes.
func NewClassifier(graceMinutes, dueSoonMinutes int) *Classifier {
	return &Classifier{
		grace:   time.Duration(graceMinutes) * time.Minute,
		dueSoon: time.Duration(dueSoonMinutes) * time.Minute,
	}
}

// Display labels. "Late" appears only at tier critical; overdue items below
// the clinical threshold say "Due earlier today" instead.
const (
	LabelDone          = "Done"
	LabelWheneverReady = "Whenever you're ready"
	LabelAnytimeToday  = "Anytime today"
	LabelLate          = "Late"
	LabelDueEarlier    = "Due earlier today"
	LabelStillToDo     = "Still to do today"
	LabelLaterToday    = "Later today"
	LabelPending       = "Pending"
)

// Classify maps one signal to an urgency result. Decision order, first
// match wins:
//
//  1. completed
//  2. no due time, optional
//  3. no due time
//  4. clinical-critical and past due by at least the grace period
//  5. overdue, below the clinical threshold
//  6. due within the due-soon window
//  7. everything else
func (c *Classifier) Classify(sig types.Signal, now time.Time) types.UrgencyResult {
	if sig.Completed {
		return info(LabelDone)
	}

	if sig.Due == nil {
		if sig.Optional {
			return info(LabelWheneverReady)
		}
		return info(LabelAnytimeToday)
	}

	due := *sig.Due
	late := now.Sub(due)

	if sig.Category.Escalation() == types.ClinicalCritical && late >= c.grace {
		return types.UrgencyResult{
			Tier:         types.TierCritical,
			ComputedTier: types.TierCritical,
			Tone:         types.ToneDanger,
			Label:        LabelLate,
			Overdue:      true,
			MinutesLate:  int(late.Minutes()),
		}
	}

	if late > 0 {
		return types.UrgencyResult{
			Tier:         types.TierAttention,
			ComputedTier: types.TierAttention,
			Tone:         types.ToneWarn,
			Label:        LabelDueEarlier,
			Overdue:      true,
			MinutesLate:  int(late.Minutes()),
		}
	}

	if due.Sub(now) <= c.dueSoon {
		return types.UrgencyResult{
			Tier:         types.TierAttention,
			ComputedTier: types.TierAttention,
			Tone:         types.ToneWarn,
			Label:        LabelStillToDo,
		}
	}

	return info(LabelLaterToday)
}

// SignalForInstance adapts a daily care instance to the classifier's input.
func SignalForInstance(inst *types.DailyCareInstance) types.Signal {
	due := inst.ScheduledTime
	return types.Signal{
		Category:  inst.ItemType,
		Due:       &due,
		Completed: inst.Status == types.StatusCompleted,
		Optional:  inst.Optional,
	}
}

func info(label string) types.UrgencyResult {
	return types.UrgencyResult{
		Tier:         types.TierInfo,
		ComputedTier: types.TierInfo,
		Tone:         types.ToneNeutral,
		Label:        label,
	}
}
