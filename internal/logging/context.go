package logging

import (
	"context"
	"log/slog"

	"vidshrink/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldMachine identifies the worker host that emitted the record.
	FieldMachine = "machine"
	// FieldRunID is the standardized key for the identifier of one worker run.
	FieldRunID = "run_id"
	// FieldVideoPath is the absolute path of the video being handled.
	FieldVideoPath = "video_path"
	// FieldVideoID is the ledger row identifier, when the SQLite ledger is in use.
	FieldVideoID = "video_id"
	// FieldStage names the worker step (claim, encode, backup, finalize).
	FieldStage = "stage"
	// FieldEventType classifies a record for later filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the kind of decision being logged.
	FieldDecisionType = "decision_type"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if path, ok := services.VideoPathFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldVideoPath, path))
	}
	if id, ok := services.VideoIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldVideoID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
