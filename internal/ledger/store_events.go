package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// AppendEvent writes one processing_log entry. Entries are never updated or deleted.
func (s *Store) AppendEvent(ctx context.Context, v *Video, machine, event, details string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("append event: empty event name")
	}
	var videoID any
	if v != nil && v.ID > 0 {
		videoID = v.ID
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO processing_log (video_id, machine, event, details, timestamp) VALUES (?, ?, ?, ?, ?)`,
		videoID, machine, event, nullableString(details), s.timestamp(),
	); err != nil {
		return fmt.Errorf("append event %s: %w", event, err)
	}
	return nil
}

// RecentEvents returns the newest processing log entries, newest first.
// A zero videoID returns entries for every video.
func (s *Store) RecentEvents(ctx context.Context, videoID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT l.id, l.video_id, v.path, l.machine, l.event, l.details, l.timestamp
        FROM processing_log l LEFT JOIN videos v ON v.id = l.video_id`
	args := []any{}
	if videoID > 0 {
		query += ` WHERE l.video_id = ?`
		args = append(args, videoID)
	}
	query += ` ORDER BY l.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			vid       sql.NullInt64
			path      sql.NullString
			details   sql.NullString
			timestamp string
		)
		if err := rows.Scan(&e.ID, &vid, &path, &e.Machine, &e.Event, &details, &timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.VideoID = vid.Int64
		e.VideoPath = path.String
		e.Details = details.String
		if t, err := parseTimeString(timestamp); err == nil {
			e.Timestamp = t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
