package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"vidshrink/internal/claim"
)

func newClaimsCommand(ctx *commandContext) *cobra.Command {
	claimsCmd := &cobra.Command{
		Use:   "claims",
		Short: "Inspect and recover shared claims",
	}
	claimsCmd.AddCommand(newClaimsListCommand(ctx))
	claimsCmd.AddCommand(newClaimsRecoverCommand(ctx))
	return claimsCmd
}

func newClaimsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every active claim, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			claims, err := rt.claims.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(claims) == 0 {
				fmt.Fprintln(out, "No active claims")
				return nil
			}
			fmt.Fprintln(out, renderClaims(claims))
			return nil
		},
	}
}

func newClaimsRecoverCommand(ctx *commandContext) *cobra.Command {
	var (
		maxAge string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Remove stale or corrupted claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			age := rt.cfg.StaleClaimAge()
			if maxAge != "" {
				age, err = parseAge(maxAge)
				if err != nil {
					return err
				}
			}
			recovered, err := rt.claims.RecoverStale(cmd.Context(), age, dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			verb := "Recovered"
			if dryRun {
				verb = "Would recover"
			}
			fmt.Fprintf(out, "%s %d claims older than %s\n", verb, len(recovered), age)
			if len(recovered) > 0 {
				fmt.Fprintln(out, renderClaims(recovered))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", "", "Age after which a claim is stale, e.g. 24h or 36 (hours); default claims.stale_hours")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List stale claims without removing them")
	return cmd
}

func renderClaims(claims []claim.Claim) string {
	sorted := append([]claim.Claim(nil), claims...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ClaimedAt.Before(sorted[j].ClaimedAt)
	})
	rows := make([][]string, 0, len(sorted))
	for _, c := range sorted {
		path := c.VideoPath
		if path == "" {
			path = c.Location
		}
		state := "ok"
		if c.Corrupted {
			state = "corrupted"
			if c.Problem != "" {
				state += ": " + c.Problem
			}
		}
		host := c.Hostname
		if host == "" {
			host = "-"
		}
		rows = append(rows, []string{path, host, formatClaimedAt(c.ClaimedAt), state})
	}
	return renderTable([]string{"Video", "Host", "Claimed", "State"}, rows, nil, nil)
}
