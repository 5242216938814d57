package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vidshrink/internal/strategy"
)

// ErrNotFound is returned when a lookup matches no video.
var ErrNotFound = errors.New("video not found")

// Upsert inserts v or refreshes the existing row with the same path.
//
// Probed metadata is always refreshed. The decision and status are only
// replaced while the existing row is still pending or skipped, so a rescan
// never rewinds in-flight or finished work. v.ID and v.Status are updated to
// reflect the stored row.
func (s *Store) Upsert(ctx context.Context, v *Video) error {
	if v == nil || strings.TrimSpace(v.Path) == "" {
		return errors.New("upsert video: empty path")
	}
	if v.Status == "" {
		v.Status = StatusPending
	}
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx, `INSERT INTO videos (
            path, filename, size_bytes, codec, width, height, bitrate, duration_sec,
            action, target_cq, downscale_1080p, size_gate, policy_version, decision_reason,
            status, scanned_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET
            filename = excluded.filename,
            size_bytes = excluded.size_bytes,
            codec = excluded.codec,
            width = excluded.width,
            height = excluded.height,
            bitrate = excluded.bitrate,
            duration_sec = excluded.duration_sec,
            action = CASE WHEN videos.status IN ('pending', 'skipped') THEN excluded.action ELSE videos.action END,
            target_cq = CASE WHEN videos.status IN ('pending', 'skipped') THEN excluded.target_cq ELSE videos.target_cq END,
            downscale_1080p = CASE WHEN videos.status IN ('pending', 'skipped') THEN excluded.downscale_1080p ELSE videos.downscale_1080p END,
            size_gate = CASE WHEN videos.status IN ('pending', 'skipped') THEN excluded.size_gate ELSE videos.size_gate END,
            policy_version = CASE WHEN videos.status IN ('pending', 'skipped') THEN excluded.policy_version ELSE videos.policy_version END,
            decision_reason = CASE WHEN videos.status IN ('pending', 'skipped') THEN excluded.decision_reason ELSE videos.decision_reason END,
            status = CASE WHEN videos.status IN ('pending', 'skipped') THEN excluded.status ELSE videos.status END,
            scanned_at = excluded.scanned_at,
            updated_at = excluded.updated_at`,
		v.Path,
		v.Filename,
		v.SizeBytes,
		nullableString(v.Codec),
		nullableInt(int64(v.Width)),
		nullableInt(int64(v.Height)),
		nullableInt(v.Bitrate),
		v.DurationSec,
		nullableString(string(v.Action)),
		nullableInt(int64(v.TargetQuality)),
		boolToInt(v.Downscale),
		boolToInt(v.SizeGateRequired),
		nullableString(v.PolicyVersion),
		nullableString(v.DecisionReason),
		v.Status,
		now,
		now,
	); err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}

	stored, err := s.GetByPath(ctx, v.Path)
	if err != nil {
		return err
	}
	*v = *stored
	return nil
}

// GetByPath looks up a video by its absolute path.
func (s *Store) GetByPath(ctx context.Context, path string) (*Video, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+videoColumns+` FROM videos WHERE path = ?`, path)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("get video by path: %w", err)
	}
	return v, nil
}

// GetByID looks up a video by row id.
func (s *Store) GetByID(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get video by id: %w", err)
	}
	return v, nil
}

// KnownPaths returns the set of paths already in the ledger.
func (s *Store) KnownPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT path FROM videos`)
	if err != nil {
		return nil, fmt.Errorf("list known paths: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		known[path] = struct{}{}
	}
	return known, rows.Err()
}

// PendingWork returns pending encode and remux work, largest first.
func (s *Store) PendingWork(ctx context.Context) ([]*Video, error) {
	return s.queryVideos(ctx,
		`SELECT `+videoColumns+` FROM videos
         WHERE status = ? AND action IN (?, ?)
         ORDER BY size_bytes DESC, id ASC`,
		StatusPending, strategy.ActionEncode, strategy.ActionRemux,
	)
}

// ListByStatus returns videos in any of the given statuses, largest first.
// With no statuses every video is returned.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Video, error) {
	if len(statuses) == 0 {
		return s.queryVideos(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY size_bytes DESC, id ASC`)
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	query := `SELECT ` + videoColumns + ` FROM videos
        WHERE status IN (` + makePlaceholders(len(statuses)) + `)
        ORDER BY size_bytes DESC, id ASC`
	return s.queryVideos(ctx, query, args...)
}

func (s *Store) queryVideos(ctx context.Context, query string, args ...any) ([]*Video, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// RecordState applies fields to v, sets its status and persists every mutable column.
func (s *Store) RecordState(ctx context.Context, v *Video, status Status, fields ...Field) error {
	if v == nil || v.ID == 0 {
		return errors.New("record state: video has no ledger id")
	}
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("record state: unknown status %q", status)
	}
	v.Apply(status, fields...)
	now := s.timestamp()
	res, err := s.execWithRetry(ctx, `UPDATE videos SET
            path = ?, filename = ?, size_bytes = ?, codec = ?, width = ?, height = ?, bitrate = ?, duration_sec = ?,
            action = ?, target_cq = ?, downscale_1080p = ?, size_gate = ?, policy_version = ?, decision_reason = ?,
            status = ?, claimed_by = ?, claimed_at = ?, finished_at = ?,
            output_path = ?, output_size = ?, savings_pct = ?, backup_path = ?, error_message = ?,
            updated_at = ?
        WHERE id = ?`,
		v.Path,
		v.Filename,
		v.SizeBytes,
		nullableString(v.Codec),
		nullableInt(int64(v.Width)),
		nullableInt(int64(v.Height)),
		nullableInt(v.Bitrate),
		v.DurationSec,
		nullableString(string(v.Action)),
		nullableInt(int64(v.TargetQuality)),
		boolToInt(v.Downscale),
		boolToInt(v.SizeGateRequired),
		nullableString(v.PolicyVersion),
		nullableString(v.DecisionReason),
		v.Status,
		nullableString(v.ClaimedBy),
		nullableTime(v.ClaimedAt),
		nullableTime(v.FinishedAt),
		nullableString(v.OutputPath),
		nullableInt(v.OutputSize),
		v.SavingsPct,
		nullableString(v.BackupPath),
		nullableString(v.ErrorMessage),
		now,
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("record state %s: %w", status, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("record state: %w: id %d", ErrNotFound, v.ID)
	}
	return nil
}
