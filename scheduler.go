package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the configuration for a Scheduler.
type Config struct {
	// OnTask is called for every due task before its hour is marked done.
	// It performs the actual work. If it returns an error the hour stays
	// outstanding and is retried on a later cycle.
	// Optional: without it tasks are only bookkept.
	//
	// OnTask runs while the scheduler is locked for the cycle. It may read
	// the task it is given but must not call back into the Scheduler
	// (Tasks, DueTasks, RegisterTask, RunCycle, ...), which would deadlock.
	OnTask func(ctx context.Context, task *Task, hour time.Time) error

	// OnError is called when a task could not be processed.
	// If OnError is not set, errors are only logged.
	OnError func(ctx context.Context, err error)

	// Logger receives structured scheduling events.
	// Default: zerolog.Nop()
	Logger *zerolog.Logger
}

// CycleResult summarises one RunCycle call.
type CycleResult struct {
	// Frontier is the hour fresh tasks were driven to.
	Frontier time.Time

	// Fresh is the number of tasks completed for the frontier.
	Fresh int

	// Backfilled is the number of tasks that filled in an older hour.
	Backfilled int

	// Failed is the number of due tasks left outstanding.
	Failed int
}

// Processed returns the number of tasks that advanced during the cycle.
func (r CycleResult) Processed() int {
	return r.Fresh + r.Backfilled
}

// Scheduler owns a set of hourly tasks and decides which of them are due.
//
// All decisions are derived from the task set and the instant passed in by
// the caller; the scheduler never reads the wall clock itself.
type Scheduler struct {
	config Config
	logger zerolog.Logger

	mu    sync.Mutex
	tasks []*Task
}

// New creates a new Scheduler with the given configuration.
func New(config Config) *Scheduler {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Scheduler{
		config: config,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterTask adds a task to the scheduler.
// The scheduler takes ownership of the task; callers must not mutate it
// while the scheduler is in use.
func (s *Scheduler) RegisterTask(task *Task) error {
	return s.RegisterTasks([]*Task{task})
}

// RegisterTasks adds several tasks, preserving their order.
// Either all tasks are registered or, on error, none are.
func (s *Scheduler) RegisterTasks(tasks []*Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[*Task]struct{}, len(s.tasks)+len(tasks))
	for _, task := range s.tasks {
		seen[task] = struct{}{}
	}

	for i, task := range tasks {
		if task == nil {
			return fmt.Errorf("task %d: %w", i, ErrNilTask)
		}
		if err := task.validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
		if _, ok := seen[task]; ok {
			return fmt.Errorf("task %d: %w: %s", i, ErrDuplicateTask, task)
		}
		seen[task] = struct{}{}
	}

	s.tasks = append(s.tasks, tasks...)
	s.logger.Debug().Int("registered", len(tasks)).Int("total", len(s.tasks)).Msg("tasks registered")
	return nil
}

// Load registers every task provided by source.
func (s *Scheduler) Load(ctx context.Context, source TaskSource) error {
	tasks, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	return s.RegisterTasks(tasks)
}

// Tasks returns the registered tasks in registration order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks)
}

// DueTasks returns the tasks that need doing at now, in registration order.
func (s *Scheduler) DueTasks(now time.Time) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueTasks(now)
}

// PrioritizedDueTasks returns the due tasks ordered for processing.
//
// Tasks with the frontier outstanding come first, in registration order.
// Tasks that only have older gaps follow, oldest EarliestDone first.
func (s *Scheduler) PrioritizedDueTasks(now time.Time) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prioritizedDueTasks(now)
}

// RunCycle processes every due task once, in priority order. Each task is
// advanced by a single hour: fresh tasks to the frontier, backfill tasks to
// the hour before their completed window.
//
// Cycles are serialised, so several run loops may share a Scheduler.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := CycleResult{Frontier: Frontier(now)}
	for _, task := range s.prioritizedDueTasks(now) {
		hour, ok := task.NextDue(now)
		if !ok {
			continue
		}
		fresh := hour.Equal(result.Frontier)

		if err := s.process(ctx, task, hour, now); err != nil {
			result.Failed++
			s.handleError(ctx, err)
			continue
		}

		if fresh {
			result.Fresh++
		} else {
			result.Backfilled++
		}
	}

	s.logger.Debug().
		Time("frontier", result.Frontier).
		Int("fresh", result.Fresh).
		Int("backfilled", result.Backfilled).
		Int("failed", result.Failed).
		Msg("cycle complete")

	return result
}

// process performs the work for one task hour and records its completion.
func (s *Scheduler) process(ctx context.Context, task *Task, hour, now time.Time) error {
	if s.config.OnTask != nil {
		if err := s.config.OnTask(ctx, task, hour); err != nil {
			return fmt.Errorf("OnTask handler failed for %s at %s: %w", task, hour.Format(time.RFC3339), err)
		}
	}

	if err := task.MarkDone(hour, now); err != nil {
		return fmt.Errorf("failed to mark %s done: %w", task, err)
	}

	s.logger.Debug().Str("task", task.String()).Time("hour", hour).Msg("task done")
	return nil
}

func (s *Scheduler) dueTasks(now time.Time) []*Task {
	var due []*Task
	for _, task := range s.tasks {
		if _, ok := task.NextDue(now); ok {
			due = append(due, task)
		}
	}
	return due
}

func (s *Scheduler) prioritizedDueTasks(now time.Time) []*Task {
	var primary, backdated []*Task
	for _, task := range s.dueTasks(now) {
		if task.IsFresh(now) {
			primary = append(primary, task)
		} else {
			backdated = append(backdated, task)
		}
	}

	// Backdated tasks always have EarliestDone set.
	slices.SortStableFunc(backdated, func(a, b *Task) int {
		return a.EarliestDone.Compare(*b.EarliestDone)
	})

	return append(primary, backdated...)
}

// handleError logs err and calls the OnError handler if configured.
func (s *Scheduler) handleError(ctx context.Context, err error) {
	s.logger.Error().Err(err).Msg("task processing failed")
	if s.config.OnError != nil {
		s.config.OnError(ctx, err)
	}
}
