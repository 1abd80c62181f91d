package main

import (
	"context"
	"fmt"
	"os"
	"time"

	scheduler "github.com/DEEJ4Y/hourly"
	"github.com/DEEJ4Y/hourly/internal/config"
	"github.com/DEEJ4Y/hourly/mongodb"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "hourly",
	Short:        "Keep hourly tasks done and backfilled",
	Long:         `Tracks recurring hourly tasks, doing the most recent hour first and filling in missed hours afterwards.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "hourly.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")
}

// newLogger builds the process logger from the config and flags.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level := cfg.Level
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if cfg.Console {
		cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// buildScheduler loads the config and registers its tasks, plus the tasks
// of the optional MongoDB source. The returned cleanup must be called.
func buildScheduler(ctx context.Context, cfg *config.Config, sc scheduler.Config) (*scheduler.Scheduler, func(), error) {
	sched := scheduler.New(sc)
	cleanup := func() {}

	tasks, err := cfg.BuildTasks()
	if err != nil {
		return nil, cleanup, err
	}
	if err := sched.RegisterTasks(tasks); err != nil {
		return nil, cleanup, fmt.Errorf("register tasks: %w", err)
	}

	if cfg.Mongo == nil {
		return sched, cleanup, nil
	}

	timeout, err := cfg.Mongo.TimeoutDuration()
	if err != nil {
		return nil, cleanup, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, cleanup, fmt.Errorf("connect to MongoDB: %w", err)
	}
	cleanup = func() { _ = client.Disconnect(context.Background()) }

	source, err := mongodb.NewSource(mongodb.Config{
		Collection: client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection),
	})
	if err != nil {
		return nil, cleanup, err
	}
	if err := sched.Load(connectCtx, source); err != nil {
		return nil, cleanup, err
	}

	return sched, cleanup, nil
}
