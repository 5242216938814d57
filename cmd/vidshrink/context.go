package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vidshrink/internal/backup"
	"vidshrink/internal/claim"
	"vidshrink/internal/config"
	"vidshrink/internal/ledger"
	"vidshrink/internal/ledger/fsledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/strategy"
	"vidshrink/internal/transcode"
	"vidshrink/internal/workflow"
)

// Swapped in tests.
var (
	newBackend = transcode.New
	newLogger  = logging.NewFromConfig
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runtime holds the collaborators for one command invocation.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	policy  strategy.Policy
	claims  claim.Store
	backend transcode.Backend
	// store is nil when the filesystem ledger is configured.
	store   *ledger.Store
	fs      *fsledger.Ledger
	manager *workflow.Manager
	closers []func() error
}

// openRuntime wires the ledger, claim store, engine, and backup store. Roots,
// when given, replace the configured library roots for this invocation.
func (c *commandContext) openRuntime(ctx context.Context, roots []string) (*runtime, error) {
	base, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	cfg := *base
	if len(roots) > 0 {
		expanded := make([]string, 0, len(roots))
		for _, root := range roots {
			path, err := config.ExpandPath(strings.TrimSpace(root))
			if err != nil {
				return nil, fmt.Errorf("resolve root %q: %w", root, err)
			}
			expanded = append(expanded, path)
		}
		cfg.Library.Roots = expanded
	}

	logger, err := newLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	policy, err := strategy.Lookup(cfg.Strategy.Policy)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: &cfg, logger: logger, policy: policy}
	claims, closeClaims, err := claim.Open(ctx, &cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open claim store: %w", err)
	}
	rt.claims = claims
	rt.closers = append(rt.closers, closeClaims)

	backend, err := newBackend(&cfg, policy, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.backend = backend

	var jobs ledger.Ledger
	switch cfg.Ledger.Backend {
	case config.LedgerFilesystem:
		fs, err := fsledger.New(fsledger.Options{
			Roots:        cfg.Library.Roots,
			Extensions:   cfg.Library.Extensions,
			Policy:       policy,
			Prober:       backend,
			EventLogPath: cfg.EventLogPath(),
			Logger:       logger,
			Claims:       claims,
		})
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.fs = fs
		jobs = fs
	default:
		store, err := ledger.Open(&cfg)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		rt.store = store
		rt.closers = append(rt.closers, store.Close)
		jobs = store
	}

	manager, err := workflow.NewManager(&cfg, workflow.Deps{
		Ledger:  jobs,
		Claims:  claims,
		Backend: backend,
		Backup:  backup.New(cfg.Paths.BackupDir, cfg.MinFreeBackupBytes(), logger),
		Policy:  policy,
		Logger:  logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.manager = manager
	return rt, nil
}

// Close releases everything openRuntime opened, newest first.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *runtime) requireStore(command string) (*ledger.Store, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%s needs the sqlite ledger (ledger.backend = %q)", command, config.LedgerSQLite)
	}
	return r.store, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
