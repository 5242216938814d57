package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidshrink/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run readiness checks for this worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Machine %s, policy %s, ledger %s, claims %s, engine %s\n",
				rt.cfg.MachineName(), rt.policy.Version, rt.cfg.Ledger.Backend, rt.cfg.Claims.Backend, rt.cfg.Transcode.Engine)

			results := preflight.RunAll(cmd.Context(), rt.cfg, rt.claims)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if rt.store != nil {
				health, err := rt.store.CheckHealth(cmd.Context())
				kind := statusOK
				detail := fmt.Sprintf("%s (exists: %s, schema v%d, %d videos)",
					health.DBPath, yesNo(health.DatabaseExists), health.SchemaVersion, health.TotalVideos)
				if err != nil {
					kind = statusError
					detail = err.Error()
				}
				fmt.Fprintln(out, renderStatusLine("Ledger database", kind, detail, colorize))
				if err != nil {
					return fmt.Errorf("ledger database unhealthy: %w", err)
				}
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
}
