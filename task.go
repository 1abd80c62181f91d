package scheduler

import (
	"fmt"
	"time"
)

// Task represents an hourly obligation that must be done for every hour
// from StartFrom onwards, and backfilled for hours that were missed.
//
// Completed hours form a contiguous window [EarliestDone, LatestDone].
// Hours inside the window are considered done; only hours before
// EarliestDone can be outstanding besides the frontier itself.
type Task struct {
	// ID is an optional identifier (source-specific type, e.g. a MongoDB _id).
	ID interface{}

	// Name is a human readable label used in logs.
	Name string

	// StartFrom is the instant from which the task recurs. Its hour is the
	// first hour the task is due for.
	StartFrom time.Time

	// RepeatUntil ends the recurrence once the frontier reaches it.
	// nil means the task repeats indefinitely.
	RepeatUntil *time.Time

	// EarliestDone is the oldest completed hour, nil if nothing completed.
	EarliestDone *time.Time

	// LatestDone is the most recent completed hour, nil if nothing completed.
	LatestDone *time.Time

	// Data carries caller fields and payload.
	Data map[string]interface{}
}

// NewTask creates a task recurring from startFrom.
func NewTask(name string, startFrom time.Time) *Task {
	return &Task{
		Name:      name,
		StartFrom: startFrom,
		Data:      make(map[string]interface{}),
	}
}

// NextDue returns the next hour the task needs doing for, relative to now.
// The boolean is false when the task is fully caught up or inactive.
//
// The frontier always takes precedence; older gaps are filled backwards
// one hour at a time from EarliestDone.
func (t *Task) NextDue(now time.Time) (time.Time, bool) {
	f := Frontier(now)
	if !t.activeAt(f) {
		return time.Time{}, false
	}

	if t.freshAt(f) {
		return f, true
	}

	if t.EarliestDone != nil && t.EarliestDone.After(t.startHour()) {
		return t.EarliestDone.Add(-time.Hour), true
	}

	return time.Time{}, false
}

// IsFresh reports whether the frontier hour is still outstanding for an
// active task.
func (t *Task) IsFresh(now time.Time) bool {
	f := Frontier(now)
	return t.activeAt(f) && t.freshAt(f)
}

// IsBackfill reports whether the task is caught up to the frontier but
// still has older hours to fill in.
func (t *Task) IsBackfill(now time.Time) bool {
	_, due := t.NextDue(now)
	return due && !t.IsFresh(now)
}

// MarkDone records completion of hour when, evaluated against the frontier
// of now. Completing the frontier advances LatestDone (and seeds
// EarliestDone on first completion); completing the hour right before
// EarliestDone extends the window backwards. Anything else is rejected and
// the task is left unchanged.
func (t *Task) MarkDone(when, now time.Time) error {
	if !isHourAligned(when) {
		return fmt.Errorf("%w: %s", ErrNotHourAligned, when.Format(time.RFC3339Nano))
	}

	f := Frontier(now)
	if !t.activeAt(f) {
		return fmt.Errorf("%w: %s at frontier %s", ErrTaskInactive, t, f.Format(time.RFC3339))
	}
	if when.Before(t.startHour()) {
		return fmt.Errorf("%w: %s is before the start of %s", ErrUnexpectedHour, when.Format(time.RFC3339), t)
	}

	if when.Equal(f) && t.freshAt(f) {
		latest := when
		t.LatestDone = &latest
		if t.EarliestDone == nil {
			earliest := when
			t.EarliestDone = &earliest
		}
		return nil
	}

	if t.EarliestDone != nil && when.Equal(t.EarliestDone.Add(-time.Hour)) {
		earliest := when
		t.EarliestDone = &earliest
		return nil
	}

	return fmt.Errorf("%w: %s for %s", ErrUnexpectedHour, when.Format(time.RFC3339), t)
}

// String returns the task name, falling back to its ID.
func (t *Task) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.ID != nil {
		return fmt.Sprintf("task %v", t.ID)
	}
	return "task"
}

// validate checks a task definition before registration.
func (t *Task) validate() error {
	if t.StartFrom.IsZero() {
		return fmt.Errorf("%w: %s has no start time", ErrInvalidTask, t)
	}
	if t.EarliestDone != nil && t.LatestDone == nil {
		return fmt.Errorf("%w: %s has an earliest done hour without a latest one", ErrInvalidTask, t)
	}
	for _, marker := range []*time.Time{t.EarliestDone, t.LatestDone} {
		if marker != nil && !isHourAligned(*marker) {
			return fmt.Errorf("%w: %s has a done marker off the hour: %s", ErrInvalidTask, t, marker.Format(time.RFC3339Nano))
		}
	}
	if t.EarliestDone != nil && t.EarliestDone.After(*t.LatestDone) {
		return fmt.Errorf("%w: %s has earliest done after latest done", ErrInvalidTask, t)
	}
	return nil
}

func (t *Task) startHour() time.Time {
	return HourStart(t.StartFrom)
}

// activeAt reports whether the task has started and not expired by frontier f.
func (t *Task) activeAt(f time.Time) bool {
	if t.startHour().After(f) {
		return false
	}
	if t.RepeatUntil != nil && !f.Before(*t.RepeatUntil) {
		return false
	}
	return true
}

// freshAt reports whether frontier f has not been completed yet.
func (t *Task) freshAt(f time.Time) bool {
	return t.LatestDone == nil || t.LatestDone.Before(f)
}
