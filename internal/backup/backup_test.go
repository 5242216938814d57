package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPathForMirrorsAbsolutePath(t *testing.T) {
	store := New("/backup", 0, logging.NewNop())
	got, err := store.PathFor("/mnt/media/shows/../shows/pilot.mkv")
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	if got != "/backup/mnt/media/shows/pilot.mkv" {
		t.Fatalf("unexpected mirror path %q", got)
	}
}

func TestMoveAndCollisionSuffix(t *testing.T) {
	base := t.TempDir()
	store := New(filepath.Join(base, "backup"), 0, logging.NewNop())
	src := filepath.Join(base, "library", "clip.mp4")

	writeFile(t, src, "first")
	first, err := store.Move(context.Background(), src)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	mirror, _ := store.PathFor(src)
	if first != mirror {
		t.Fatalf("first backup = %q, want %q", first, mirror)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source should be gone after move")
	}

	writeFile(t, src, "second")
	second, err := store.Move(context.Background(), src)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if !strings.HasSuffix(second, "clip_1.mp4") {
		t.Fatalf("expected collision suffix, got %q", second)
	}
	if got, _ := os.ReadFile(first); string(got) != "first" {
		t.Fatal("existing backup must not be overwritten")
	}
	if !store.Exists(second) || store.Exists("") {
		t.Fatal("Exists mismatch")
	}
}

func TestMoveMissingSourceIsBackupError(t *testing.T) {
	store := New(t.TempDir(), 0, logging.NewNop())
	_, err := store.Move(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"))
	if !errors.Is(err, services.ErrBackup) {
		t.Fatalf("expected ErrBackup, got %v", err)
	}
}

func TestMoveRefusesWhenVolumeIsFull(t *testing.T) {
	base := t.TempDir()
	store := New(filepath.Join(base, "backup"), 1<<30, logging.NewNop())
	store.free = func(context.Context, string) (uint64, error) { return 512 << 20, nil }
	src := filepath.Join(base, "library", "big.mkv")
	writeFile(t, src, "payload")

	_, err := store.Move(context.Background(), src)
	if !errors.Is(err, services.ErrBackup) {
		t.Fatalf("expected ErrBackup, got %v", err)
	}
	if !strings.Contains(err.Error(), "free") {
		t.Fatalf("expected free space detail, got %v", err)
	}
	if _, statErr := os.Stat(src); statErr != nil {
		t.Fatal("source must be untouched when the space check fails")
	}
}

func TestMoveProceedsWhenUsageUnavailable(t *testing.T) {
	base := t.TempDir()
	store := New(filepath.Join(base, "backup"), 1<<30, logging.NewNop())
	store.free = func(context.Context, string) (uint64, error) { return 0, errors.New("statfs failed") }
	src := filepath.Join(base, "library", "ok.mkv")
	writeFile(t, src, "payload")

	if _, err := store.Move(context.Background(), src); err != nil {
		t.Fatalf("Move: %v", err)
	}
}

func TestRestoreReplacesCurrentFile(t *testing.T) {
	base := t.TempDir()
	store := New(filepath.Join(base, "backup"), 0, logging.NewNop())
	dst := filepath.Join(base, "library", "movie.mp4")
	writeFile(t, dst, "original")
	backupPath, err := store.Move(context.Background(), dst)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	writeFile(t, dst, "bad-compressed")

	if err := store.Restore(context.Background(), backupPath, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "original" {
		t.Fatalf("restored content = %q", got)
	}
	if store.Exists(backupPath) {
		t.Fatal("backup should be consumed by restore")
	}
}

func TestRestoreMissingBackup(t *testing.T) {
	store := New(t.TempDir(), 0, logging.NewNop())
	err := store.Restore(context.Background(), "/nonexistent/backup.mp4", filepath.Join(t.TempDir(), "x.mp4"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
