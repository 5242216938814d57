package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	videoPathKey contextKey = "video_path"
	videoIDKey   contextKey = "video_id"
	stageKey     contextKey = "stage"
)

// WithRunID annotates context with the identifier of the current worker run.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithVideoPath annotates context with the video being processed.
func WithVideoPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, videoPathKey, path)
}

// VideoPathFromContext returns the video path if present.
func VideoPathFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(videoPathKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithVideoID annotates context with the ledger row identifier.
func WithVideoID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, videoIDKey, id)
}

// VideoIDFromContext extracts the ledger row identifier if present.
func VideoIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(videoIDKey).(int64)
	return v, ok
}

// WithStage annotates context with the worker step name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
