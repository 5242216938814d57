package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidshrink/internal/backup"
	"vidshrink/internal/claim"
	"vidshrink/internal/config"
	"vidshrink/internal/ledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
	"vidshrink/internal/strategy"
	"vidshrink/internal/transcode"
)

// Deps are the collaborators a Manager drives.
type Deps struct {
	Ledger  ledger.Ledger
	Claims  claim.Store
	Backend transcode.Backend
	Backup  *backup.Store
	// Policy defaults to cfg.Strategy.Policy when its Version is empty.
	Policy strategy.Policy
	Logger *slog.Logger
}

// Manager coordinates one machine's share of the library.
type Manager struct {
	cfg     *config.Config
	ledger  ledger.Ledger
	claims  claim.Store
	backend transcode.Backend
	backup  *backup.Store
	policy  strategy.Policy
	logger  *slog.Logger
	machine string
	now     func() time.Time
}

// NewManager validates deps and returns a Manager.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	if deps.Ledger == nil || deps.Claims == nil || deps.Backend == nil || deps.Backup == nil {
		return nil, errors.New("workflow: ledger, claims, backend and backup are required")
	}
	policy := deps.Policy
	if policy.Version == "" {
		p, err := strategy.Lookup(cfg.Strategy.Policy)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "policy", "", err)
		}
		policy = p
	}
	return &Manager{
		cfg:     cfg,
		ledger:  deps.Ledger,
		claims:  deps.Claims,
		backend: deps.Backend,
		backup:  deps.Backup,
		policy:  policy,
		logger:  logging.NewComponentLogger(deps.Logger, "workflow"),
		machine: cfg.MachineName(),
		now:     time.Now,
	}, nil
}

// SetClock overrides the time source used for claim and finish stamps.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Policy returns the active strategy policy.
func (m *Manager) Policy() strategy.Policy {
	return m.policy
}

// store returns the SQLite ledger for operations that need queries beyond the
// worker contract.
func (m *Manager) store() (*ledger.Store, error) {
	store, ok := m.ledger.(*ledger.Store)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "ledger",
			fmt.Sprintf("operation requires ledger.backend = %q", config.LedgerSQLite), nil)
	}
	return store, nil
}

func (m *Manager) videoLogger(ctx context.Context, v *ledger.Video) *slog.Logger {
	ctx = services.WithVideoPath(ctx, v.Path)
	ctx = services.WithVideoID(ctx, v.ID)
	return logging.WithContext(ctx, m.logger)
}

func (m *Manager) appendEvent(ctx context.Context, logger *slog.Logger, v *ledger.Video, event, details string) {
	if err := m.ledger.AppendEvent(ctx, v, m.machine, event, details); err != nil {
		logging.WarnWithContext(logger, "processing log write failed", "ledger_event_failed",
			logging.String("ledger_event", event),
			logging.Error(err),
			logging.String(logging.FieldImpact, "event missing from processing log"),
		)
	}
}

func (m *Manager) release(ctx context.Context, logger *slog.Logger, path string) {
	if err := m.claims.Release(ctx, path); err != nil {
		logging.WarnWithContext(logger, "claim release failed", "claim_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run vidshrink claims recover once the claim store is reachable"),
			logging.String(logging.FieldImpact, "file stays claimed until the stale sweep"),
		)
	}
}
