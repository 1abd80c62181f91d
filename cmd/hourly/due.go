package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	scheduler "github.com/DEEJ4Y/hourly"
	"github.com/DEEJ4Y/hourly/internal/config"
	"github.com/spf13/cobra"
)

var dueAt string

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List due tasks in processing order",
	Long:  `Prints the tasks that are due at the given instant, in the order a cycle would process them, without doing them.`,
	Args:  cobra.NoArgs,
	RunE:  runDue,
}

func init() {
	dueCmd.Flags().StringVar(&dueAt, "at", "", "Instant to evaluate (RFC 3339, default now)")
	rootCmd.AddCommand(dueCmd)
}

func runDue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	now := time.Now().UTC()
	if dueAt != "" {
		if now, err = config.ParseTime("--at", dueAt); err != nil {
			return err
		}
	}

	sched, cleanup, err := buildScheduler(cmd.Context(), cfg, scheduler.Config{Logger: &logger})
	defer cleanup()
	if err != nil {
		return err
	}

	return printDue(cmd, sched, now)
}

func printDue(cmd *cobra.Command, sched *scheduler.Scheduler, now time.Time) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Frontier: %s\n", scheduler.Frontier(now).Format(time.RFC3339))

	tasks := sched.PrioritizedDueTasks(now)
	if len(tasks) == 0 {
		fmt.Fprintln(out, "Nothing due.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tHOUR\tKIND")
	for _, task := range tasks {
		hour, _ := task.NextDue(now)
		kind := "fresh"
		if task.IsBackfill(now) {
			kind = "backfill"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", task, hour.Format(time.RFC3339), kind)
	}
	return w.Flush()
}
