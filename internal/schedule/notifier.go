package schedule

import (
	"context"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/interfaces"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// ReminderPlanner derives notification requests from freshly materialized
// instances and hands them to the notification registry. The registry owns
// delivery; from here it is a pure sink. A request for a time already in the
// past is never issued.
type ReminderPlanner struct {
	registry interfaces.NotificationRegistry
	logger   *logger.Logger
}

// NewReminderPlanner creates a new reminder planner
func NewReminderPlanner(registry interfaces.NotificationRegistry, log *logger.Logger) *ReminderPlanner {
	return &ReminderPlanner{
		registry: registry,
		logger:   log,
	}
}

// PlanReminders schedules one reminder per pending instance whose scheduled
// time is still ahead of now. Best-effort: registry failures are logged and
// swallowed so reminder planning never blocks expansion.
func (p *ReminderPlanner) PlanReminders(ctx context.Context, instances []*types.DailyCareInstance, now time.Time) {
	planned := 0
	skipped := 0

	for _, inst := range instances {
		if inst.Status != types.StatusPending {
			continue
		}
		if !inst.ScheduledTime.After(now) {
			skipped++
			continue
		}

		if err := p.registry.ScheduleReminder(ctx, inst, inst.ScheduledTime); err != nil {
			p.logger.WithError(err).Warnf("Failed to schedule reminder for instance %s", inst.ID)
			continue
		}
		planned++
	}

	if planned > 0 || skipped > 0 {
		p.logger.Debugf("Planned %d reminders, skipped %d past-due", planned, skipped)
	}
}

// CancelReminder withdraws a previously planned reminder, typically after an
// instance resolves. Best-effort, same as planning.
func (p *ReminderPlanner) CancelReminder(ctx context.Context, instanceID string) {
	if err := p.registry.CancelReminder(ctx, instanceID); err != nil {
		p.logger.WithError(err).Debugf("Failed to cancel reminder for instance %s", instanceID)
	}
}
