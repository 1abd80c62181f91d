package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RunnerConfig holds the configuration for a Runner.
type RunnerConfig struct {
	// Scheduler is the required scheduler driven by the runner.
	Scheduler *Scheduler

	// Event Handlers (all optional)

	// OnStart is called when the runner starts.
	OnStart func(ctx context.Context) error

	// OnStop is called when the runner stops.
	OnStop func(ctx context.Context) error

	// OnIdle is called when a cycle finds nothing due. It's only called
	// once when transitioning to idle.
	OnIdle func(ctx context.Context) error

	// OnCycle is called after every cycle with its result.
	OnCycle func(ctx context.Context, result CycleResult)

	// OnError is called when a runner handler fails.
	// If OnError is not set, errors are only logged.
	OnError func(ctx context.Context, err error)

	// Timing Configuration

	// Throttle is the minimum time between the start of two cycles.
	// Default: 0 (run cycles back to back)
	Throttle time.Duration

	// Schedule is an optional cron expression deciding when cycles start,
	// e.g. "@every 1m" or "0 */5 * * * *". It takes precedence over Throttle.
	// The first cycle always runs immediately.
	Schedule string

	// Iterations stops the runner after that many cycles.
	// Default: 0 (run until stopped)
	Iterations int

	// Now returns the current instant passed to each cycle.
	// Default: time.Now in UTC
	Now func() time.Time

	// Logger receives structured runner events.
	// Default: zerolog.Nop()
	Logger *zerolog.Logger
}

// Runner repeatedly runs scheduler cycles until stopped.
type Runner struct {
	scheduler *Scheduler
	config    RunnerConfig
	schedule  cron.Schedule
	logger    zerolog.Logger

	// State tracking
	running atomic.Bool
	idle    atomic.Bool
	cycles  atomic.Int64

	// Lifecycle management
	mu       sync.Mutex
	used     bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a new Runner with the given configuration.
// Returns an error if the configuration is invalid.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if config.Throttle < 0 {
		return nil, errors.New("throttle must be >= 0")
	}
	if config.Iterations < 0 {
		return nil, errors.New("iterations must be >= 0")
	}

	schedule, err := parseSchedule(config.Schedule)
	if err != nil {
		return nil, err
	}

	// Set defaults
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Runner{
		scheduler: config.Scheduler,
		config:    config,
		schedule:  schedule,
		logger:    logger.With().Str("component", "runner").Logger(),
		done:      make(chan struct{}),
	}, nil
}

// Start begins running cycles in the background.
// Calling Start while the runner is running is a no-op. A runner runs only
// once: after it has finished or been stopped, Start returns ErrRunnerUsed.
// The runner runs until Stop is called, the context is canceled or the
// configured number of iterations is reached.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.used {
		if r.running.Load() {
			return nil
		}
		return ErrRunnerUsed
	}
	r.used = true
	r.running.Store(true)

	r.ctx, r.cancel = context.WithCancel(ctx)

	if r.config.OnStart != nil {
		if err := r.config.OnStart(r.ctx); err != nil {
			r.running.Store(false)
			r.cancel()
			return fmt.Errorf("OnStart handler failed: %w", err)
		}
	}

	r.logger.Info().
		Dur("throttle", r.config.Throttle).
		Str("schedule", r.config.Schedule).
		Int("iterations", r.config.Iterations).
		Msg("runner started")

	r.wg.Add(1)
	go r.run()

	return nil
}

// Stop gracefully stops the runner.
// It waits for the current cycle to finish before returning.
// It's safe to call Stop multiple times. A runner stopped before it was
// started cannot be started afterwards.
func (r *Runner) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.used = true
		r.running.Store(false)
		cancel := r.cancel
		r.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		select {
		case <-r.finished():
		case <-ctx.Done():
			err = ctx.Err()
			return
		}

		if r.config.OnStop != nil {
			if stopErr := r.config.OnStop(context.Background()); stopErr != nil {
				err = fmt.Errorf("OnStop handler failed: %w", stopErr)
			}
		}

		r.logger.Info().Int64("cycles", r.cycles.Load()).Msg("runner stopped")
	})
	return err
}

// Run starts the runner and blocks until the iterations are exhausted or
// ctx is canceled, then stops it.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	select {
	case <-r.done:
	case <-ctx.Done():
	}

	return r.Stop(context.Background())
}

// Done returns a channel that's closed once the cycle loop has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// IsRunning returns true if the runner is running.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// IsIdle returns true if the last cycle found nothing to do.
func (r *Runner) IsIdle() bool {
	return r.idle.Load()
}

// Cycles returns the number of cycles run so far.
func (r *Runner) Cycles() int64 {
	return r.cycles.Load()
}

// finished waits for the loop goroutine, even if it was never started.
func (r *Runner) finished() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(ch)
	}()
	return ch
}

// run is the main cycle loop.
func (r *Runner) run() {
	defer r.wg.Done()
	defer close(r.done)

	for r.running.Load() {
		started := r.config.Now()
		r.tick(started)

		n := r.cycles.Add(1)
		if r.config.Iterations > 0 && n >= int64(r.config.Iterations) {
			r.running.Store(false)
			return
		}

		delay := nextCycleDelay(r.schedule, r.config.Throttle, started, r.config.Now())
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.ctx.Done():
				return
			}
		}

		if r.ctx.Err() != nil {
			return
		}
	}
}

// tick runs a single cycle.
func (r *Runner) tick(now time.Time) {
	result := r.scheduler.RunCycle(r.ctx, now)

	r.logger.Info().
		Time("frontier", result.Frontier).
		Int("fresh", result.Fresh).
		Int("backfilled", result.Backfilled).
		Int("failed", result.Failed).
		Msg("cycle finished")

	if r.config.OnCycle != nil {
		r.config.OnCycle(r.ctx, result)
	}

	if result.Processed() > 0 || result.Failed > 0 {
		r.idle.Store(false)
		return
	}

	// Trigger OnIdle only once when transitioning to idle state
	if !r.idle.Swap(true) && r.config.OnIdle != nil {
		if err := r.config.OnIdle(r.ctx); err != nil {
			r.handleError(fmt.Errorf("OnIdle handler failed: %w", err))
		}
	}
}

// handleError logs err and calls the OnError handler if configured.
func (r *Runner) handleError(err error) {
	r.logger.Error().Err(err).Msg("runner error")
	if r.config.OnError != nil {
		r.config.OnError(r.ctx, err)
	}
}
