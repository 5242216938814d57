package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidshrink/internal/preflight"
	"vidshrink/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		batch         int
		dryRun        bool
		recoverStale  bool
		skipPreflight bool
	)

	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "Claim and process pending videos until the batch or the work runs out",
		Long: "Run fetches pending work from the ledger and processes it one video at a time.\n" +
			"Roots given on the command line are scanned first (sqlite ledger) or replace\n" +
			"the configured roots (filesystem ledger). Interrupting finishes the current\n" +
			"video before exiting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("batch") {
				batch = cfg.Workflow.BatchSize
			}

			var lock *workflow.WorkerLock
			if !dryRun {
				lock, err = workflow.AcquireWorkerLock(cfg.WorkerLockPath())
				if err != nil {
					if errors.Is(err, workflow.ErrWorkerBusy) {
						return fmt.Errorf("%w; wait for it to finish or stop it first", err)
					}
					return err
				}
				defer lock.Release()
			}

			rt, err := ctx.openRuntime(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if !dryRun && !skipPreflight {
				failed := preflight.Failed(preflight.RunAll(cmd.Context(), rt.cfg, rt.claims))
				if len(failed) > 0 {
					for _, r := range failed {
						fmt.Fprintln(out, renderStatusLine(r.Name, statusError, r.Detail, shouldColorize(out)))
					}
					return fmt.Errorf("preflight failed: %d check(s); run `vidshrink check` for details", len(failed))
				}
			}

			if len(args) > 0 && rt.store != nil {
				if _, err := rt.manager.Scan(cmd.Context(), workflow.ScanOptions{}); err != nil {
					return err
				}
			}

			stats, err := rt.manager.Run(cmd.Context(), workflow.RunOptions{
				Batch:        batch,
				RecoverStale: recoverStale,
				DryRun:       dryRun,
			})
			printRunSummary(cmd, stats)
			return err
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "Stop after this many videos; 0 is unlimited (default workflow.batch_size)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report pending work without claiming anything")
	cmd.Flags().BoolVar(&recoverStale, "recover-stale", false, "Sweep stale claims before fetching work")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running readiness checks")
	return cmd
}

func printRunSummary(cmd *cobra.Command, stats workflow.RunStats) {
	out := cmd.OutOrStdout()
	if stats.DryRun {
		fmt.Fprintf(out, "Dry run: %d videos pending", stats.Pending)
		if stats.Recovered > 0 {
			fmt.Fprintf(out, ", %d stale claims would be recovered", stats.Recovered)
		}
		fmt.Fprintln(out)
		return
	}

	parts := []string{
		fmt.Sprintf("%d compressed", stats.Compressed),
		fmt.Sprintf("%d remuxed", stats.Remuxed),
		fmt.Sprintf("%d no savings", stats.NoSavings),
		fmt.Sprintf("%d failed", stats.Failed),
	}
	if stats.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", stats.Skipped))
	}
	if stats.AlreadyClaimed > 0 {
		parts = append(parts, fmt.Sprintf("%d claimed elsewhere", stats.AlreadyClaimed))
	}
	if stats.Aborted > 0 {
		parts = append(parts, fmt.Sprintf("%d aborted", stats.Aborted))
	}
	fmt.Fprintf(out, "Run %s: %s\n", stats.RunID, strings.Join(parts, ", "))
	if stats.BytesIn > 0 {
		fmt.Fprintf(out, "Input %s, output %s, saved %s (%s)\n",
			formatBytes(stats.BytesIn),
			formatBytes(stats.BytesOut),
			formatBytes(stats.BytesIn-stats.BytesOut),
			formatPercent(workflow.SavingsPercent(stats.BytesIn, stats.BytesOut)),
		)
	}
	if stats.Interrupted {
		fmt.Fprintln(out, "Interrupted; remaining videos were left pending")
	}
}
