package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return testNow
}

func TestNewRunner(t *testing.T) {
	t.Run("requires scheduler", func(t *testing.T) {
		_, err := NewRunner(RunnerConfig{})
		assert.Error(t, err)
	})

	t.Run("rejects invalid schedule", func(t *testing.T) {
		_, err := NewRunner(RunnerConfig{Scheduler: New(Config{}), Schedule: "whenever"})
		assert.ErrorContains(t, err, "invalid cron expression")
	})

	t.Run("rejects negative values", func(t *testing.T) {
		_, err := NewRunner(RunnerConfig{Scheduler: New(Config{}), Throttle: -time.Second})
		assert.Error(t, err)

		_, err = NewRunner(RunnerConfig{Scheduler: New(Config{}), Iterations: -1})
		assert.Error(t, err)
	})

	t.Run("sets default clock", func(t *testing.T) {
		runner, err := NewRunner(RunnerConfig{Scheduler: New(Config{})})
		require.NoError(t, err)
		require.NotNil(t, runner.config.Now)
		assert.Equal(t, time.UTC, runner.config.Now().Location())
	})
}

func TestRunner_StartStop(t *testing.T) {
	runner, err := NewRunner(RunnerConfig{
		Scheduler: New(Config{}),
		Throttle:  10 * time.Millisecond,
		Now:       fixedNow,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, runner.Start(ctx))
	require.NoError(t, runner.Start(ctx), "second start is a no-op")
	assert.True(t, runner.IsRunning())

	require.Eventually(t, func() bool { return runner.Cycles() >= 2 }, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(stopCtx))
	assert.False(t, runner.IsRunning())

	select {
	case <-runner.Done():
	default:
		t.Error("loop should have exited")
	}
}

func TestRunner_Iterations(t *testing.T) {
	sched := New(Config{})
	task := NewTask("once", yesterday)
	require.NoError(t, sched.RegisterTask(task))

	var results []CycleResult
	var started, stopped atomic.Bool
	runner, err := NewRunner(RunnerConfig{
		Scheduler:  sched,
		Iterations: 1,
		Now:        fixedNow,
		OnStart: func(ctx context.Context) error {
			started.Store(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped.Store(true)
			return nil
		},
		OnCycle: func(ctx context.Context, result CycleResult) {
			results = append(results, result)
		},
	})
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background()))

	assert.True(t, started.Load())
	assert.True(t, stopped.Load())
	assert.EqualValues(t, 1, runner.Cycles())
	assert.Equal(t, []CycleResult{{Frontier: testFrontier, Fresh: 1}}, results)
	assert.Equal(t, testFrontier, *task.EarliestDone)
}

func TestRunner_RunsUntilCaughtUp(t *testing.T) {
	sched := New(Config{})
	task := &Task{Name: "lagging", StartFrom: hour(-3), EarliestDone: ptr(hour(-1)), LatestDone: ptr(testFrontier)}
	require.NoError(t, sched.RegisterTask(task))

	var idle atomic.Int32
	runner, err := NewRunner(RunnerConfig{
		Scheduler:  sched,
		Iterations: 5,
		Now:        fixedNow,
		OnIdle: func(ctx context.Context) error {
			idle.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, hour(-3), *task.EarliestDone)
	assert.True(t, runner.IsIdle())
	assert.EqualValues(t, 1, idle.Load(), "OnIdle fires once per transition")
}

func TestRunner_OnIdleError(t *testing.T) {
	var reported atomic.Value
	runner, err := NewRunner(RunnerConfig{
		Scheduler:  New(Config{}),
		Iterations: 1,
		Now:        fixedNow,
		OnIdle: func(ctx context.Context) error {
			return errors.New("idle failed")
		},
		OnError: func(ctx context.Context, err error) {
			reported.Store(err)
		},
	})
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background()))

	got, ok := reported.Load().(error)
	require.True(t, ok)
	assert.ErrorContains(t, got, "idle failed")
}

func TestRunner_OnStartError(t *testing.T) {
	runner, err := NewRunner(RunnerConfig{
		Scheduler: New(Config{}),
		OnStart: func(ctx context.Context) error {
			return errors.New("no")
		},
	})
	require.NoError(t, err)

	assert.ErrorContains(t, runner.Start(context.Background()), "OnStart handler failed")
	assert.False(t, runner.IsRunning())
}

func TestRunner_ContextCancel(t *testing.T) {
	runner, err := NewRunner(RunnerConfig{
		Scheduler: New(Config{}),
		Throttle:  time.Hour,
		Now:       fixedNow,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.Cycles() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	assert.False(t, runner.IsRunning())
}

func TestRunner_RunsOnlyOnce(t *testing.T) {
	t.Run("run after finished run", func(t *testing.T) {
		runner, err := NewRunner(RunnerConfig{
			Scheduler:  New(Config{}),
			Iterations: 1,
			Now:        fixedNow,
		})
		require.NoError(t, err)

		require.NoError(t, runner.Run(context.Background()))

		assert.ErrorIs(t, runner.Run(context.Background()), ErrRunnerUsed)
		assert.ErrorIs(t, runner.Start(context.Background()), ErrRunnerUsed)
		assert.False(t, runner.IsRunning())
		assert.EqualValues(t, 1, runner.Cycles())
	})

	t.Run("start after stop", func(t *testing.T) {
		runner, err := NewRunner(RunnerConfig{
			Scheduler: New(Config{}),
			Throttle:  10 * time.Millisecond,
			Now:       fixedNow,
		})
		require.NoError(t, err)

		require.NoError(t, runner.Start(context.Background()))
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, runner.Stop(stopCtx))

		assert.ErrorIs(t, runner.Start(context.Background()), ErrRunnerUsed)
		assert.False(t, runner.IsRunning())
	})

	t.Run("stop before start", func(t *testing.T) {
		runner, err := NewRunner(RunnerConfig{Scheduler: New(Config{})})
		require.NoError(t, err)

		require.NoError(t, runner.Stop(context.Background()))

		assert.ErrorIs(t, runner.Start(context.Background()), ErrRunnerUsed)
		assert.Zero(t, runner.Cycles())
	})
}
