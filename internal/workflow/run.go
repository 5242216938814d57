package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

// RunOptions tune a Run.
type RunOptions struct {
	// Batch caps the number of videos this machine works on; zero is unlimited.
	Batch int
	// RecoverStale sweeps stale claims before fetching work.
	RecoverStale bool
	// DryRun lists pending work without claiming anything.
	DryRun bool
}

// Run fetches pending work and processes it sequentially. Cancelling ctx stops
// the loop before the next video; the video in flight is finished first.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (RunStats, error) {
	start := m.now()
	stats := RunStats{RunID: uuid.NewString(), DryRun: opts.DryRun}
	ctx = services.WithRunID(ctx, stats.RunID)
	logger := logging.WithContext(ctx, m.logger)

	if opts.RecoverStale {
		recovered, err := m.claims.RecoverStale(ctx, m.cfg.StaleClaimAge(), opts.DryRun)
		if err != nil {
			return stats, fmt.Errorf("recover stale claims: %w", err)
		}
		stats.Recovered = len(recovered)
	}

	work, err := m.ledger.PendingWork(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch pending work: %w", err)
	}
	stats.Pending = len(work)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String(logging.FieldMachine, m.machine),
		logging.Int("pending", len(work)),
		logging.Int("batch", opts.Batch),
		logging.Bool("dry_run", opts.DryRun),
	)
	if opts.DryRun {
		stats.Elapsed = m.now().Sub(start)
		return stats, nil
	}

	for _, v := range work {
		if ctx.Err() != nil {
			stats.Interrupted = true
			break
		}
		if opts.Batch > 0 && stats.Attempted() >= opts.Batch {
			break
		}
		res, err := m.Process(ctx, v)
		stats.add(res)
		if err != nil {
			stats.Elapsed = m.now().Sub(start)
			return stats, err
		}
	}
	if ctx.Err() != nil {
		stats.Interrupted = true
	}
	stats.Elapsed = m.now().Sub(start)

	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("compressed", stats.Compressed),
		logging.Int("remuxed", stats.Remuxed),
		logging.Int("no_savings", stats.NoSavings),
		logging.Int("failed", stats.Failed),
		logging.Int("skipped", stats.Skipped),
		logging.Int("already_claimed", stats.AlreadyClaimed),
		logging.Int64("input_bytes", stats.BytesIn),
		logging.Int64("output_bytes", stats.BytesOut),
		logging.Bool("interrupted", stats.Interrupted),
		logging.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// ErrWorkerBusy is returned when another worker on this machine holds the lock.
var ErrWorkerBusy = errors.New("another vidshrink worker is running on this machine")

// WorkerLock keeps a second worker process on the same host from starting.
type WorkerLock struct {
	path string
	lock *flock.Flock
}

// AcquireWorkerLock takes the per-machine lock without blocking.
func AcquireWorkerLock(path string) (*WorkerLock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire worker lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrWorkerBusy, path)
	}
	return &WorkerLock{path: path, lock: lock}, nil
}

// Path returns the lock file path.
func (l *WorkerLock) Path() string {
	return l.path
}

// Release drops the lock.
func (l *WorkerLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
