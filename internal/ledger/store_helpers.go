package ledger

import (
	"database/sql"
	"errors"
	"time"

	"vidshrink/internal/strategy"
)

const videoColumns = "id, path, filename, size_bytes, codec, width, height, bitrate, duration_sec, action, target_cq, downscale_1080p, size_gate, policy_version, decision_reason, status, claimed_by, claimed_at, finished_at, output_path, output_size, savings_pct, backup_path, error_message, scanned_at, updated_at"

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		id             int64
		path           string
		filename       string
		sizeBytes      int64
		codec          sql.NullString
		width          sql.NullInt64
		height         sql.NullInt64
		bitrate        sql.NullInt64
		duration       sql.NullFloat64
		action         sql.NullString
		targetCQ       sql.NullInt64
		downscale      sql.NullInt64
		sizeGate       sql.NullInt64
		policyVersion  sql.NullString
		decisionReason sql.NullString
		statusStr      string
		claimedBy      sql.NullString
		claimedAtRaw   sql.NullString
		finishedAtRaw  sql.NullString
		outputPath     sql.NullString
		outputSize     sql.NullInt64
		savingsPct     sql.NullFloat64
		backupPath     sql.NullString
		errorMessage   sql.NullString
		scannedRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&path,
		&filename,
		&sizeBytes,
		&codec,
		&width,
		&height,
		&bitrate,
		&duration,
		&action,
		&targetCQ,
		&downscale,
		&sizeGate,
		&policyVersion,
		&decisionReason,
		&statusStr,
		&claimedBy,
		&claimedAtRaw,
		&finishedAtRaw,
		&outputPath,
		&outputSize,
		&savingsPct,
		&backupPath,
		&errorMessage,
		&scannedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	v := &Video{
		ID:       id,
		Path:     path,
		Filename: filename,
		MediaInfo: MediaInfo{
			SizeBytes:   sizeBytes,
			Codec:       codec.String,
			Width:       int(width.Int64),
			Height:      int(height.Int64),
			Bitrate:     bitrate.Int64,
			DurationSec: duration.Float64,
		},
		Action:           strategy.Action(action.String),
		TargetQuality:    int(targetCQ.Int64),
		Downscale:        downscale.Int64 != 0,
		SizeGateRequired: sizeGate.Int64 != 0,
		PolicyVersion:    policyVersion.String,
		DecisionReason:   decisionReason.String,
		Status:           Status(statusStr),
		ClaimedBy:        claimedBy.String,
		OutputPath:       outputPath.String,
		OutputSize:       outputSize.Int64,
		SavingsPct:       savingsPct.Float64,
		BackupPath:       backupPath.String,
		ErrorMessage:     errorMessage.String,
	}
	if claimedAtRaw.Valid {
		if t, err := parseTimeString(claimedAtRaw.String); err == nil {
			v.ClaimedAt = &t
		}
	}
	if finishedAtRaw.Valid {
		if t, err := parseTimeString(finishedAtRaw.String); err == nil {
			v.FinishedAt = &t
		}
	}
	if t, err := parseTimeString(scannedRaw.String); err == nil {
		v.ScannedAt = t
	}
	if t, err := parseTimeString(updatedRaw.String); err == nil {
		v.UpdatedAt = t
	}
	return v, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// parseTimeString accepts RFC3339 as written by this package and the naive
// isoformat timestamps found in databases imported from older tooling.
func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized timestamp " + value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
