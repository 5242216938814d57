package services_test

import (
	"context"
	"testing"

	"vidshrink/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithVideoPath(ctx, "/media/a.mkv")
	ctx = services.WithVideoID(ctx, 42)
	ctx = services.WithStage(ctx, "encode")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if path, ok := services.VideoPathFromContext(ctx); !ok || path != "/media/a.mkv" {
		t.Fatalf("unexpected video path: %v %v", path, ok)
	}
	if id, ok := services.VideoIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected video id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "encode" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithVideoID(ctx, 0)
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.VideoIDFromContext(ctx); ok {
		t.Fatal("expected no video id")
	}
}
