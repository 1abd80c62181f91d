package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts six-field expressions with seconds
// ("0 5 * * * *") and descriptors ("@hourly", "@every 10m").
var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// parseSchedule parses a cycle schedule expression.
// An empty expression yields a nil schedule.
func parseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, nil
	}
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// ValidateSchedule reports whether expr is a valid RunnerConfig.Schedule.
// An empty expression is valid and means no schedule.
func ValidateSchedule(expr string) error {
	_, err := parseSchedule(expr)
	return err
}

// nextCycleDelay calculates how long to wait before the next cycle.
//
// With a schedule, the next cycle starts at the next activation after
// finished. Otherwise cycles start at most once per throttle: the time the
// cycle took is subtracted from the throttle. The delay is never negative.
func nextCycleDelay(schedule cron.Schedule, throttle time.Duration, started, finished time.Time) time.Duration {
	var delay time.Duration
	if schedule != nil {
		delay = schedule.Next(finished).Sub(finished)
	} else {
		delay = throttle - finished.Sub(started)
	}

	if delay < 0 {
		return 0
	}
	return delay
}
