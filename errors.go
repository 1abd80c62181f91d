package scheduler

import "errors"

var (
	// ErrNilTask is returned when registering a nil task.
	ErrNilTask = errors.New("task is nil")

	// ErrInvalidTask is returned when a task definition cannot be scheduled.
	ErrInvalidTask = errors.New("invalid task")

	// ErrDuplicateTask is returned when the same task is registered twice.
	ErrDuplicateTask = errors.New("task already registered")

	// ErrNotHourAligned is returned by MarkDone for instants that are not
	// on an hour boundary.
	ErrNotHourAligned = errors.New("time is not hour aligned")

	// ErrTaskInactive is returned by MarkDone when the task has not started
	// yet or its recurrence window has closed.
	ErrTaskInactive = errors.New("task is not active")

	// ErrUnexpectedHour is returned by MarkDone for an hour that is neither
	// the frontier nor the hour right before the completed window.
	ErrUnexpectedHour = errors.New("hour cannot be marked done")

	// ErrRunnerUsed is returned when starting a runner that has already
	// finished or been stopped.
	ErrRunnerUsed = errors.New("runner already used")
)
