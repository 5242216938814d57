package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"vidshrink/internal/strategy"
	"vidshrink/internal/workflow"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var rescan bool

	cmd := &cobra.Command{
		Use:   "scan [roots...]",
		Short: "Probe the library and record a decision for every new file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer rt.Close()
			if _, err := rt.requireStore("scan"); err != nil {
				return err
			}

			stats, err := rt.manager.Scan(cmd.Context(), workflow.ScanOptions{Rescan: rescan})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d files: %d new, %d refreshed, %d already known, %d probe errors\n",
				stats.Found, stats.Added, stats.Refreshed, stats.Known, stats.ProbeErrors)
			if len(stats.Actions) == 0 {
				return nil
			}
			actions := make([]strategy.Action, 0, len(stats.Actions))
			for action := range stats.Actions {
				actions = append(actions, action)
			}
			sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
			rows := make([][]string, 0, len(actions))
			for _, action := range actions {
				rows = append(rows, []string{label(string(action)), strconv.Itoa(stats.Actions[action])})
			}
			fmt.Fprintln(out, renderTable([]string{"Action", "Files"}, rows, []columnAlignment{alignLeft, alignRight}, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rescan, "rescan", false, "Re-probe files already in the ledger")
	return cmd
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would do, grouped by action",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			plan, err := rt.manager.Plan(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(plan) == 0 {
				fmt.Fprintln(out, "Nothing to do")
				return nil
			}

			var (
				rows       [][]string
				totalCount int
				totalBytes int64
			)
			for _, row := range plan {
				rows = append(rows, []string{label(string(row.Action)), strconv.Itoa(row.Count), formatBytes(row.TotalBytes)})
				totalCount += row.Count
				totalBytes += row.TotalBytes
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Action", "Files", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
				[]string{"Total", strconv.Itoa(totalCount), formatBytes(totalBytes)},
			))

			if !verbose {
				return nil
			}
			for _, row := range plan {
				fmt.Fprintf(out, "\n%s (%d)\n", label(string(row.Action)), row.Count)
				for _, v := range row.Videos {
					fmt.Fprintf(out, "  %10s  %s\n", formatBytes(v.SizeBytes), v.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every file under its action")
	return cmd
}
