package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidshrink/internal/config"
	"vidshrink/internal/logging"
	"vidshrink/internal/strategy"
	"vidshrink/internal/testsupport"
	"vidshrink/internal/transcode"
	"vidshrink/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	backend    *testsupport.FakeBackend
	configPath string
	root       string
}

func setupCLITestEnv(t *testing.T, ledgerBackend string) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, testsupport.WithLedgerBackend(ledgerBackend))
	backend := testsupport.NewFakeBackend()

	origBackend, origLogger := newBackend, newLogger
	newBackend = func(*config.Config, strategy.Policy, *slog.Logger) (transcode.Backend, error) {
		return backend, nil
	}
	newLogger = func(*config.Config) (*slog.Logger, error) { return logging.NewNop(), nil }
	t.Cleanup(func() {
		newBackend, newLogger = origBackend, origLogger
	})

	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		backend:    backend,
		configPath: configPath,
		root:       testsupport.LibraryRoot(cfg),
	}
}

// addVideo writes a library file and registers its probe with the fake engine.
func (e *cliTestEnv) addVideo(t *testing.T, rel string, size int64, probe transcode.ProbeResult) string {
	t.Helper()
	path := filepath.Join(e.root, rel)
	testsupport.WriteFile(t, path, size)
	e.backend.SetProbe(path, probe)
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
ledger_dir = %q
log_dir = %q
claim_dir = %q
backup_dir = %q

[library]
roots = [%q]

[ledger]
backend = %q

[machine]
name = %q

[workflow]
min_free_backup_gib = 0
`,
		cfg.Paths.LedgerDir,
		cfg.Paths.LogDir,
		cfg.Paths.ClaimDir,
		cfg.Paths.BackupDir,
		testsupport.LibraryRoot(cfg),
		cfg.Ledger.Backend,
		cfg.MachineName(),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func acquireLock(t *testing.T, path string) func() {
	t.Helper()
	lock, err := workflow.AcquireWorkerLock(path)
	if err != nil {
		t.Fatalf("acquire worker lock: %v", err)
	}
	return func() { _ = lock.Release() }
}
