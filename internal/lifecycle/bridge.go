package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// futureBias pushes every not-yet-due candidate behind every already-due
// one when scoring sync candidates.
const futureBias = 24 * time.Hour

// SyncBridge maps free-form category logging to the pending scheduled
// occurrence it fulfills. It is best-effort secondary linkage: internal
// errors are swallowed and reported as a false return so the primary
// logging path is never blocked.
type SyncBridge struct {
	instances  interfaces.InstanceStore
	completion *CompletionEngine
	logger     *logger.Logger
	now        func() time.Time
}

// NewSyncBridge creates a new log sync bridge
func NewSyncBridge(instances interfaces.InstanceStore, completion *CompletionEngine, log *logger.Logger) *SyncBridge {
	return &SyncBridge{
		instances:  instances,
		completion: completion,
		logger:     log,
		now:        time.Now,
	}
}

// SyncLogToInstance finds the best pending instance of itemType for the
// date and completes it. Returns false when no pending candidate exists —
// logging without an active plan slot is valid, not an error. With a name
// hint, an exact case-insensitive name match wins. Otherwise candidates are
// scored: already-due instances score now-scheduled (smaller wins), future
// instances score (scheduled-now)+24h so any due instance outranks any
// future one. A repeat call after full satisfaction finds zero pending
// candidates and returns false; completions are never double-applied.
func (b *SyncBridge) SyncLogToInstance(ctx context.Context, patientID string, itemType types.CareCategory, date string, data map[string]interface{}, nameHint string) bool {
	instances, err := b.instances.ListDailyInstances(ctx, patientID, date)
	if err != nil {
		b.logger.WithError(err).Warnf("Sync bridge could not load instances for %s/%s", patientID, date)
		return false
	}

	var candidates []*types.DailyCareInstance
	for _, inst := range instances {
		if inst.ItemType == itemType && inst.Status == types.StatusPending {
			candidates = append(candidates, inst)
		}
	}
	if len(candidates) == 0 {
		return false
	}

	target := b.pick(candidates, nameHint)

	result, err := b.completion.LogInstanceCompletion(ctx, patientID, date, target.ID, types.OutcomeCompleted, data, &types.CompletionOptions{Source: "quick_log"})
	if err != nil {
		b.logger.WithError(err).Warnf("Sync bridge failed to complete instance %s", target.ID)
		return false
	}
	if result == nil {
		// Lost a double-submit race; the occurrence is already resolved.
		return false
	}

	b.logger.WithPatientID(patientID).Debugf("Synced %s log to instance %s (%s)", itemType, target.ID, target.ItemName)
	return true
}

func (b *SyncBridge) pick(candidates []*types.DailyCareInstance, nameHint string) *types.DailyCareInstance {
	if nameHint != "" {
		for _, inst := range candidates {
			if strings.EqualFold(inst.ItemName, nameHint) {
				return inst
			}
		}
	}

	now := b.now()
	best := candidates[0]
	bestScore := syncScore(best, now)
	for _, inst := range candidates[1:] {
		if score := syncScore(inst, now); score < bestScore {
			best = inst
			bestScore = score
		}
	}
	return best
}

func syncScore(inst *types.DailyCareInstance, now time.Time) time.Duration {
	if !inst.ScheduledTime.After(now) {
		return now.Sub(inst.ScheduledTime)
	}
	return inst.ScheduledTime.Sub(now) + futureBias
}
