package preflight

import (
	"context"

	"vidshrink/internal/claim"
	"vidshrink/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check that applies to cfg. claims may be
// nil, in which case the claim store round trip is skipped.
func RunAll(ctx context.Context, cfg *config.Config, claims claim.Store) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Ledger directory", cfg.Paths.LedgerDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	if cfg.Claims.Backend == config.ClaimsDirectory {
		results = append(results, CheckDirectoryAccess("Claim directory", cfg.Paths.ClaimDir))
	}
	results = append(results, CheckDirectoryAccess("Backup directory", cfg.Paths.BackupDir))
	for _, root := range cfg.Library.Roots {
		results = append(results, CheckDirectoryAccess("Library root", root))
	}
	results = append(results, CheckBackupSpace(ctx, cfg.Paths.BackupDir, cfg.MinFreeBackupBytes()))
	if claims != nil {
		results = append(results, CheckClaimStore(ctx, claims, cfg.MachineName()))
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, FromStatus(status))
	}
	if encoder := RequiredEncoder(cfg); encoder != "" {
		results = append(results, CheckEncoder(ctx, cfg.Transcode.FFmpegBinary, encoder))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
