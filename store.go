package scheduler

import "context"

// TaskSource supplies task definitions to a Scheduler.
// Any storage backend can implement this interface to feed the scheduler.
//
// Sources are read once at registration time; the scheduler keeps task
// state in memory and does not write it back.
type TaskSource interface {
	// Load returns the tasks to register, in the order they should be
	// registered. Returned tasks must not be shared with another scheduler.
	Load(ctx context.Context) ([]*Task, error)
}

// StaticSource is a TaskSource backed by a fixed list of tasks.
type StaticSource []*Task

// Load returns the tasks of the list.
func (s StaticSource) Load(ctx context.Context) ([]*Task, error) {
	return []*Task(s), nil
}
