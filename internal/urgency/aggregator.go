package urgency

import "github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"

// CategoryUrgency is the rolled-up urgency of one category.
type CategoryUrgency struct {
	Category types.CareCategory  `json:"category"`
	Result   types.UrgencyResult `json:"result"`
	Pending  int                 `json:"pending"`
}

// AggregateCategory rolls up a category's pending signals to the single
// worst result. The total order is: tier critical before attention before
// info; within a tier, overdue before not-overdue; among overdue results,
// larger minutes-late first. Returns a quiet info result when the category
// has no pending signals.
func AggregateCategory(category types.CareCategory, results []types.UrgencyResult) CategoryUrgency {
	if len(results) == 0 {
		return CategoryUrgency{
			Category: category,
			Result:   info(LabelDone),
		}
	}

	worst := results[0]
	for _, r := range results[1:] {
		if MoreUrgent(r, worst) {
			worst = r
		}
	}

	return CategoryUrgency{
		Category: category,
		Result:   worst,
		Pending:  len(results),
	}
}

// MoreUrgent reports whether a outranks b in the aggregation order.
func MoreUrgent(a, b types.UrgencyResult) bool {
	if a.ComputedTier != b.ComputedTier {
		return a.ComputedTier.WorseThan(b.ComputedTier)
	}
	if a.Overdue != b.Overdue {
		return a.Overdue
	}
	return a.MinutesLate > b.MinutesLate
}

// ApplyAboveFoldConstraint enforces the above-the-fold cap: across the whole
// dashboard at most one critical element may render in the primary viewport.
// State is threaded explicitly; pass the returned FoldState to the next
// call. When the cap is exceeded, the displayed tier is downgraded to
// attention with the "Pending" label and the suppression flag set, while
// ComputedTier keeps the unconstrained classification.
func ApplyAboveFoldConstraint(u types.UrgencyResult, fold types.FoldState) (types.UrgencyResult, types.FoldState) {
	if u.Tier != types.TierCritical {
		return u, fold
	}

	if fold.CriticalRendered >= fold.MaxCritical {
		u.Tier = types.TierAttention
		u.Tone = types.ToneWarn
		u.Label = LabelPending
		u.SuppressedFromCritical = true
		return u, fold
	}

	fold.CriticalRendered++
	return u, fold
}
