//go:build !race

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentRunnersLarge is a stress test with 50 runners sharing one
// scheduler of 2,000 tasks with a week of backlog each.
// Skipped in race detector mode as it's intentionally creating high concurrency.
func TestConcurrentRunnersLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping large concurrency test in short mode")
	}

	const (
		numRunners  = 50
		numTasks    = 2000
		backlog     = 7 * 24
		testTimeout = 5 * time.Minute
	)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	t.Logf("Test configuration: %d runners, %d tasks, %d hours backlog", numRunners, numTasks, backlog)

	tracker := NewConcurrentExecutionTracker()
	var worked atomic.Int64
	sched := New(Config{
		OnTask: func(ctx context.Context, task *Task, hour time.Time) error {
			tracker.Record(task, hour)
			worked.Add(1)
			return nil
		},
	})

	tasks := make([]*Task, numTasks)
	for i := range tasks {
		// Stagger the start hours so backfill gaps differ between tasks.
		start := hour(-(backlog - 1 - i%24))
		tasks[i] = NewTask(fmt.Sprintf("task-%06d", i), start)
	}
	require.NoError(t, sched.RegisterTasks(tasks))

	startTime := time.Now()
	runners := make([]*Runner, numRunners)
	for i := range runners {
		runner, err := NewRunner(RunnerConfig{
			Scheduler: sched,
			Now:       fixedNow,
		})
		require.NoError(t, err)
		runners[i] = runner
	}

	var wg sync.WaitGroup
	for _, runner := range runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			assert.NoError(t, r.Start(ctx))
		}(runner)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(sched.DueTasks(testNow)) == 0
	}, testTimeout, 50*time.Millisecond)

	for _, runner := range runners {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		assert.NoError(t, runner.Stop(stopCtx))
		stopCancel()
	}

	t.Logf("Worked %d task hours in %v", worked.Load(), time.Since(startTime))

	assert.Empty(t, tracker.Duplicates())
	var expected int64
	for i, task := range tasks {
		hours := backlog - i%24
		expected += int64(hours)
		assert.Equal(t, hours, tracker.Hours(task))
		assert.Equal(t, testFrontier, *task.LatestDone)
	}
	assert.Equal(t, expected, worked.Load())
}
