package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// CompletionEngine records caregiving actions against the immutable log and
// transitions the matching daily instance. The log write happens first; a
// failed log write leaves the instance untouched, so the pair behaves as a
// single logical unit.
type CompletionEngine struct {
	instances interfaces.InstanceStore
	logs      interfaces.CareLogStore
	logger    *logger.Logger
}

// NewCompletionEngine creates a new completion engine
func NewCompletionEngine(instances interfaces.InstanceStore, logs interfaces.CareLogStore, log *logger.Logger) *CompletionEngine {
	return &CompletionEngine{
		instances: instances,
		logs:      logs,
		logger:    log,
	}
}

// LogInstanceCompletion writes the log entry and transitions the instance.
// Returns (nil, nil) when the instance id is unknown or the instance has
// already left pending; both are expected races (double-submit), not
// failures. Status transitions are forward-only.
func (e *CompletionEngine) LogInstanceCompletion(ctx context.Context, patientID, date, instanceID string, outcome types.LogOutcome, data map[string]interface{}, opts *types.CompletionOptions) (*types.CompletionResult, error) {
	status, ok := types.StatusForOutcome(outcome)
	if !ok {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("unknown outcome: %s", outcome), nil)
	}

	instances, err := e.instances.ListDailyInstances(ctx, patientID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load instances: %w", err)
	}

	var target *types.DailyCareInstance
	for _, inst := range instances {
		if inst.ID == instanceID {
			target = inst
			break
		}
	}
	if target == nil {
		e.logger.WithPatientID(patientID).Debugf("Completion for unknown instance %s ignored", instanceID)
		return nil, nil
	}
	if target.Status.Terminal() {
		e.logger.WithPatientID(patientID).Debugf("Completion for resolved instance %s ignored", instanceID)
		return nil, nil
	}

	recordedAt := time.Now()
	source := ""
	if opts != nil {
		if !opts.RecordedAt.IsZero() {
			recordedAt = opts.RecordedAt
		}
		source = opts.Source
	}

	entryData := data
	if source != "" {
		// Annotate a copy; the caller's map is theirs.
		entryData = make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			entryData[k] = v
		}
		entryData["source"] = source
	}

	entry := &types.LogEntry{
		ID:         uuid.New().String(),
		PatientID:  patientID,
		Category:   target.ItemType,
		InstanceID: instanceID,
		Outcome:    outcome,
		Timestamp:  recordedAt,
		Data:       entryData,
	}

	// Log first. If this fails the instance must not transition.
	if err := e.logs.AppendLogEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append log entry: %w", err)
	}

	updated, err := e.instances.UpdateDailyInstanceStatus(ctx, patientID, date, instanceID, status, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update instance status: %w", err)
	}
	if updated == nil {
		// The instance vanished between lookup and update; surface the
		// same not-found sentinel as the initial lookup path.
		return nil, nil
	}

	e.logger.CareAction(patientID, string(outcome), string(target.ItemType), true, map[string]interface{}{
		"instance_id": instanceID,
		"status":      string(status),
	})

	return &types.CompletionResult{Instance: updated, Log: entry}, nil
}
