package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidshrink/internal/ledger/fsledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [roots...]",
		Short: "Summarise ledger progress",
		Long: "Status groups the sqlite ledger by status and action. With the filesystem\n" +
			"ledger it walks the library instead and probes every unmarked file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if rt.fs != nil {
				census, err := rt.fs.Census(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderCensus(census))
				return nil
			}

			summary, err := rt.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if len(summary) == 0 {
				fmt.Fprintln(out, "Ledger is empty; run `vidshrink scan` first")
				return nil
			}
			var (
				rows     [][]string
				files    int
				inBytes  int64
				outBytes int64
			)
			for _, row := range summary {
				savings := "-"
				if row.OutputBytes > 0 {
					savings = formatPercent(row.AvgSavingsPct)
				}
				rows = append(rows, []string{
					label(string(row.Status)),
					label(string(row.Action)),
					strconv.Itoa(row.Count),
					formatBytes(row.TotalBytes),
					formatBytes(row.OutputBytes),
					savings,
				})
				files += row.Count
				inBytes += row.TotalBytes
				outBytes += row.OutputBytes
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Status", "Action", "Files", "Input", "Output", "Avg Savings"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				[]string{"Total", "", strconv.Itoa(files), formatBytes(inBytes), formatBytes(outBytes), ""},
			))

			claims, err := rt.claims.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d active claims\n", len(claims))
			return nil
		},
	}
}

func renderCensus(c fsledger.Census) string {
	buckets := []struct {
		name   string
		bucket fsledger.Bucket
	}{
		{"Compressed", c.Compressed},
		{"Skipped", c.Skipped},
		{"Claimed", c.Claimed},
		{"Remaining", c.Remaining},
		{"Unreadable", c.Unreadable},
	}
	rows := make([][]string, 0, len(buckets))
	var total int64
	for _, b := range buckets {
		rows = append(rows, []string{b.name, strconv.Itoa(b.bucket.Count), formatBytes(b.bucket.Bytes)})
		total += b.bucket.Bytes
	}
	return renderTable(
		[]string{"State", "Files", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
		[]string{"Total", strconv.Itoa(c.Total()), formatBytes(total)},
	)
}
