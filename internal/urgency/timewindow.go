package urgency

import (
	"sort"
	"time"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/types"
)

// TimeWindow is one of the four fixed day-parts used to group the dashboard.
type TimeWindow string

const (
	WindowMorning   TimeWindow = "morning"
	WindowAfternoon TimeWindow = "afternoon"
	WindowEvening   TimeWindow = "evening"
	WindowNight     TimeWindow = "night"
)

// Windows lists the day-parts in display order.
func Windows() []TimeWindow {
	return []TimeWindow{WindowMorning, WindowAfternoon, WindowEvening, WindowNight}
}

// WindowForTime maps a time of day to its window. The night window wraps
// past midnight: [21,24) and [0,5).
func WindowForTime(t time.Time) TimeWindow {
	hour := t.Hour()
	switch {
	case hour >= 5 && hour < 12:
		return WindowMorning
	case hour >= 12 && hour < 17:
		return WindowAfternoon
	case hour >= 17 && hour < 21:
		return WindowEvening
	default:
		return WindowNight
	}
}

// WindowForTimestamp parses an RFC 3339 timestamp and returns its window.
// Unparsable input defaults to morning so every item keeps a home on the
// dashboard.
func WindowForTimestamp(ts string) TimeWindow {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return WindowMorning
	}
	return WindowForTime(t)
}

// GroupByTimeWindow buckets instances into day-parts, each group sorted by
// scheduled time.
func GroupByTimeWindow(instances []*types.DailyCareInstance) map[TimeWindow][]*types.DailyCareInstance {
	groups := make(map[TimeWindow][]*types.DailyCareInstance)
	for _, inst := range instances {
		window := WindowForTime(inst.ScheduledTime)
		groups[window] = append(groups[window], inst)
	}

	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ScheduledTime.Before(group[j].ScheduledTime)
		})
	}

	return groups
}
