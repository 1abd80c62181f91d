package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	scheduler "github.com/DEEJ4Y/hourly"
	"github.com/DEEJ4Y/hourly/internal/config"
	"github.com/spf13/cobra"
)

var runIterations int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scheduling cycles until interrupted",
	Long: `Runs a scheduling cycle every throttle period (or on the configured cron
schedule). Each cycle does the last full hour for every task, then fills in
one missed hour per lagging task.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runIterations, "iterations", "n", -1, "Stop after this many cycles (overrides runner.iterations)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, cleanup, err := buildScheduler(ctx, cfg, scheduler.Config{
		OnTask: func(ctx context.Context, task *scheduler.Task, hour time.Time) error {
			logger.Info().Str("task", task.String()).Time("hour", hour).Msg("doing task")
			return nil
		},
		Logger: &logger,
	})
	defer cleanup()
	if err != nil {
		return err
	}

	throttle, err := cfg.Runner.ThrottleDuration()
	if err != nil {
		return err
	}
	iterations := cfg.Runner.Iterations
	if runIterations >= 0 {
		iterations = runIterations
	}

	runner, err := scheduler.NewRunner(scheduler.RunnerConfig{
		Scheduler:  sched,
		Throttle:   throttle,
		Schedule:   cfg.Runner.Schedule,
		Iterations: iterations,
		OnIdle: func(ctx context.Context) error {
			logger.Info().Msg("all tasks caught up")
			return nil
		},
		Logger: &logger,
	})
	if err != nil {
		return err
	}

	return runner.Run(ctx)
}
