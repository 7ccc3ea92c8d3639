package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/spsa/internal/store"
)

var (
	runsDataDir   string
	keepLast      int
	olderThanDays int
	forceClean    bool
	tracesOnly    bool
	showTrace     bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage persisted runs",
	Long: `Inspect and prune runs saved by "spsa run --data-dir". Every run keeps its
configuration, initial and final parameters and an optional iteration trace.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Long:  `Display all runs with function, method, final value, iterations, status and size on disk.`,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep only the newest N runs or delete runs older than N days.
With --traces-only the selected runs keep their records and lose their traces.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for run storage")

	showRunCmd.Flags().BoolVar(&showTrace, "trace", false, "Print the iteration trace")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
	cleanRunsCmd.Flags().BoolVar(&tracesOnly, "traces-only", false, "Delete only the iteration traces and keep the run records")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := output(cmd)
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tFUNCTION\tMETHOD\tDIM\tITERATIONS\tVALUE\tSTATUS\tSIZE")
	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(runStore.RunDir(info.ID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.6g\t%s\t%s\n",
			shortID(info.ID),
			info.StartedAt.Format("2006-01-02 15:04:05"),
			info.Function,
			info.Method,
			info.Dim,
			info.Iterations,
			info.Value,
			info.Status,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	run, err := runStore.LoadRun(args[0])
	if err != nil {
		return err
	}

	out := output(cmd)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", run.ID)
	if run.Parent != "" {
		fmt.Fprintf(w, "Parent:\t%s\n", run.Parent)
	}
	fmt.Fprintf(w, "Function:\t%s (dim %d)\n", run.Config.Function, run.Config.Dim)
	fmt.Fprintf(w, "Method:\t%s\n", run.Config.Method)
	fmt.Fprintf(w, "Seed:\t%d\n", run.Config.Seed)
	if run.Config.Method == store.MethodSPSA {
		c := run.Config.SPSA
		fmt.Fprintf(w, "Hyperparameters:\talpha=%g batch=%d gamma=%g step=%g eval-step=%g max-iters=%d tol=%g\n",
			c.StepSizeDecayExponent, c.BatchSize, c.PerturbationDecayExponent,
			c.StepSize, c.EvaluationStepSize, c.MaxIterations, c.Tolerance)
	} else {
		fmt.Fprintf(w, "Population:\t%d\n", run.Config.PopSize)
	}
	fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	fmt.Fprintf(w, "Value:\t%.6g -> %.6g\n", run.InitialValue, run.Value)
	fmt.Fprintf(w, "Iterations:\t%d\n", run.Iterations)
	fmt.Fprintf(w, "Evaluations:\t%d\n", run.Evaluations)
	fmt.Fprintf(w, "Started:\t%s\n", run.StartedAt.Format(time.RFC3339))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration:\t%s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Initial params:\t%s\n", formatParams(run.InitialParams))
	fmt.Fprintf(w, "Params:\t%s\n", formatParams(run.Params))
	w.Flush()

	if showTrace {
		return printTrace(out, runStore.BaseDir(), run.ID)
	}
	return nil
}

func printTrace(out io.Writer, baseDir, runID string) error {
	reader, err := store.NewTraceReader(baseDir, runID)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(out, "\nNo trace recorded.")
		return nil
	} else if err != nil {
		return err
	}
	defer reader.Close()

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITERATION\tVALUE\tSTEP GAIN\tPERTURBATION GAIN")
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%.6g\t%.4g\t%.4g\n", entry.Iteration, entry.Value, entry.StepGain, entry.PerturbationGain)
	}
	return w.Flush()
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := output(cmd)
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s/%s, %s)\n",
			shortID(info.ID),
			info.Function,
			info.Method,
			info.StartedAt.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	what := "run(s)"
	if tracesOnly {
		what = "trace(s)"
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		var err error
		if tracesOnly {
			err = store.DeleteTrace(runStore.BaseDir(), info.ID)
		} else {
			err = runStore.DeleteRun(info.ID)
		}
		if err != nil {
			slog.Error("Failed to delete", "run_id", info.ID, "traces_only", tracesOnly, "error", err)
			failed++
		} else {
			slog.Info("Deleted", "run_id", info.ID, "traces_only", tracesOnly)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d %s, %d failed.\n", deleted, what, failed)
	return nil
}

// selectRunsForDeletion returns the runs older than olderThanDays plus the
// oldest runs beyond the newest keepLast, each at most once.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, now time.Time) []store.RunInfo {
	var toDelete []store.RunInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.StartedAt.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RunInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].StartedAt.Before(sorted[j].StartedAt)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.ID] {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	return toDelete
}

func output(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
