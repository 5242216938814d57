package ledger

import "context"

// Ledger is the contract the worker loop drives, independent of backend.
type Ledger interface {
	// PendingWork returns the videos the worker should attempt, largest first.
	PendingWork(ctx context.Context) ([]*Video, error)
	// RecordState transitions v to status, applying fields first.
	RecordState(ctx context.Context, v *Video, status Status, fields ...Field) error
	// AppendEvent writes one processing log entry for v.
	AppendEvent(ctx context.Context, v *Video, machine, event, details string) error
	// RequiresRevalidation reports whether the worker must re-probe the
	// idempotency tag after claiming, because pending work may be stale.
	RequiresRevalidation() bool
}

var _ Ledger = (*Store)(nil)
