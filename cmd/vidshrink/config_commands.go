package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidshrink/internal/config"
	"vidshrink/internal/strategy"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the vidshrink configuration",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration for this machine",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Every worker must share paths.claim_dir and paths.backup_dir; set library.roots to the same mounts on each machine.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Where to write the configuration (default ~/.config/vidshrink/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func configTarget(flagValue string) (string, error) {
	if target := strings.TrimSpace(flagValue); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	target, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and summarize how this worker coordinates",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(path))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			policy, err := strategy.Lookup(cfg.Strategy.Policy)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Config path: %s\n", resolved)
			} else {
				fmt.Fprintf(out, "Config path: %s (not found, using defaults)\n", resolved)
			}
			writeCoordinationSummary(out, cfg, policy)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func writeCoordinationSummary(out io.Writer, cfg *config.Config, policy strategy.Policy) {
	fmt.Fprintf(out, "Machine: %s\n", cfg.MachineName())

	switch cfg.Ledger.Backend {
	case config.LedgerFilesystem:
		fmt.Fprintf(out, "Ledger: filesystem inference, events in %s\n", cfg.EventLogPath())
	default:
		fmt.Fprintf(out, "Ledger: sqlite at %s\n", cfg.LedgerPath())
	}

	stale := cfg.StaleClaimAge()
	switch cfg.Claims.Backend {
	case config.ClaimsRedis:
		fmt.Fprintf(out, "Claims: redis %s, keys %s*, stale after %s\n", cfg.Claims.RedisAddr, cfg.Claims.RedisPrefix, stale)
	default:
		fmt.Fprintf(out, "Claims: %s, stale after %s\n", cfg.Paths.ClaimDir, stale)
	}

	fmt.Fprintf(out, "Policy: %s (%s into %s, tag %s)\n", policy.Version, policy.VideoEncoder, policy.TargetContainer, policy.Tag)
	fmt.Fprintf(out, "Engine: %s\n", cfg.Transcode.Engine)

	backup := cfg.Paths.BackupDir
	if floor := cfg.MinFreeBackupBytes(); floor > 0 {
		backup += fmt.Sprintf(" (keeps %s free)", humanize.IBytes(floor))
	}
	fmt.Fprintf(out, "Backups: %s\n", backup)

	roots := "none"
	if len(cfg.Library.Roots) > 0 {
		roots = strings.Join(cfg.Library.Roots, ", ")
	}
	fmt.Fprintf(out, "Library roots: %s\n", roots)
}
