package main

import (
	"os"
	"path/filepath"
	"testing"

	"vidshrink/internal/config"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, config.LedgerSQLite)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Machine: test-host")
	requireContains(t, out, "Ledger: sqlite at "+env.cfg.LedgerPath())
	requireContains(t, out, "Claims: "+env.cfg.Paths.ClaimDir+", stale after 24h0m0s")
	requireContains(t, out, "Policy: v4 (h264_nvenc into .mp4, tag compressed_h264_v4)")
	requireContains(t, out, "Library roots: "+env.root)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	requireContains(t, out, "paths.claim_dir")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestUnknownConfigKeysAreRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, []string{"status"}, path); err == nil {
		t.Fatal("expected unknown keys to fail config load")
	}
}
