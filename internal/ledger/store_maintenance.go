package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"vidshrink/internal/strategy"
)

// CountByStatus returns a count of videos grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM videos GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Stats returns status × action totals with input and output sizes.
func (s *Store) Stats(ctx context.Context) ([]StatusSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COALESCE(action, ''), COUNT(1),
            COALESCE(SUM(size_bytes), 0),
            COALESCE(SUM(output_size), 0),
            COALESCE(AVG(savings_pct), 0)
        FROM videos
        GROUP BY status, action
        ORDER BY status, action`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	var summary []StatusSummary
	for rows.Next() {
		var (
			row    StatusSummary
			action string
		)
		if err := rows.Scan(&row.Status, &action, &row.Count, &row.TotalBytes, &row.OutputBytes, &row.AvgSavingsPct); err != nil {
			return nil, err
		}
		row.Action = strategy.Action(action)
		summary = append(summary, row)
	}
	return summary, rows.Err()
}

// RetryFailed moves failed videos back to pending, clearing their results.
// With ids only those rows are touched.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE videos
        SET status = ?, claimed_by = NULL, claimed_at = NULL, finished_at = NULL,
            output_path = NULL, output_size = NULL, savings_pct = NULL, error_message = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusPending, s.timestamp(), StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed videos: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the ledger database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("ledger database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat ledger database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("ledger database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("ledger database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping ledger database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil && !errors.Is(err, sql.ErrNoRows) {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'videos'")
	if err := row.Scan(&tableName); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
		return health, nil
	}
	health.TableExists = true

	colsRows, err := s.db.QueryContext(connCtx, "PRAGMA table_info(videos)")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("table info: %w", err)
	}
	defer colsRows.Close()
	for colsRows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := colsRows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan column: %w", err)
		}
		health.Columns = append(health.Columns, name)
	}
	if err := colsRows.Err(); err != nil {
		return health, err
	}

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM videos").Scan(&health.TotalVideos); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count videos: %w", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM processing_log").Scan(&health.TotalEvents); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count events: %w", err)
	}
	return health, nil
}
