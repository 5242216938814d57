package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidshrink/internal/ledger"
	"vidshrink/internal/workflow"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var inventory, audit string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Seed the sqlite ledger from an inventory export and an optional audit CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(inventory) == "" {
				return errors.New("--inventory is required")
			}
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.manager.Bootstrap(cmd.Context(), inventory, audit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d videos (%d with audit results)\n", stats.Imported, stats.Audited)
			fmt.Fprintln(out, renderStatusCounts(stats.Statuses))
			return nil
		},
	}

	cmd.Flags().StringVar(&inventory, "inventory", "", "Inventory JSON file")
	cmd.Flags().StringVar(&audit, "audit", "", "Audit CSV with compressed_path and classification columns")
	return cmd
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Grade compressed outputs against their backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.manager.Audit(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(report.Entries) == 0 {
				fmt.Fprintln(out, "No compressed videos to audit")
				return nil
			}
			classes := []workflow.AuditClass{workflow.AuditGood, workflow.AuditMarginal, workflow.AuditBigger, workflow.AuditMissing}
			rows := make([][]string, 0, len(classes))
			for _, class := range classes {
				rows = append(rows, []string{label(string(class)), strconv.Itoa(report.Counts[class])})
			}
			fmt.Fprintln(out, renderTable([]string{"Class", "Files"}, rows, []columnAlignment{alignLeft, alignRight}, nil))
			if dryRun {
				fmt.Fprintln(out, "Dry run: ledger not updated")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Grade without updating statuses")
	return cmd
}

func newRemediateCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "remediate",
		Short: "Restore originals for videos whose compressed output was rejected",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !dryRun {
				lock, err := workflow.AcquireWorkerLock(cfg.WorkerLockPath())
				if err != nil {
					return err
				}
				defer lock.Release()
			}
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.manager.Remediate(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "Dry run: %d of %d videos would be restored; %d have no backup\n",
					stats.Planned, stats.Candidates, stats.NoBackup)
				return nil
			}
			fmt.Fprintf(out, "Restored %d of %d videos; %d without backup, %d claimed elsewhere, %d failed\n",
				stats.Restored, stats.Candidates, stats.NoBackup, stats.Busy, stats.Failed)
			if stats.Failed > 0 {
				return fmt.Errorf("%d remediations failed; see the log for details", stats.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be restored")
	return cmd
}

func newRetryFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed [ids...]",
		Short: "Move failed videos back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid video id %q", arg)
				}
				ids = append(ids, id)
			}
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			store, err := rt.requireStore("retry-failed")
			if err != nil {
				return err
			}

			n, err := store.RetryFailed(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed videos to pending\n", n)
			return nil
		},
	}
}

func renderStatusCounts(counts map[ledger.Status]int) string {
	statuses := make([]ledger.Status, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{label(string(status)), strconv.Itoa(counts[status])})
	}
	return renderTable([]string{"Status", "Files"}, rows, []columnAlignment{alignLeft, alignRight}, nil)
}
