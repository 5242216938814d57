package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidshrink/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The library root is <base>/library and the backup root sits beside it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LedgerDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ClaimDir = filepath.Join(base, "claims")
	cfgVal.Paths.BackupDir = filepath.Join(base, "backup")
	cfgVal.Library.Roots = []string{filepath.Join(base, "library")}
	cfgVal.Machine.Name = "test-host"
	cfgVal.Workflow.MinFreeBackupGiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, root := range builder.cfg.Library.Roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			t.Fatalf("mkdir library root: %v", err)
		}
	}
	return builder.cfg
}

// WithMachine overrides the machine name used for claims and events.
func WithMachine(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Machine.Name = name
	}
}

// WithLedgerBackend selects the ledger backend.
func WithLedgerBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Backend = backend
	}
}

// WithSharedDirs points claim and backup dirs at another config's, so two
// simulated machines coordinate through the same storage.
func WithSharedDirs(other *config.Config) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.ClaimDir = other.Paths.ClaimDir
		b.cfg.Paths.BackupDir = other.Paths.BackupDir
		b.cfg.Library.Roots = append([]string(nil), other.Library.Roots...)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, binDir, name, "exit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// LibraryRoot returns the first library root of the generated config.
func LibraryRoot(cfg *config.Config) string {
	if len(cfg.Library.Roots) == 0 {
		return ""
	}
	return cfg.Library.Roots[0]
}
