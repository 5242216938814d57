package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vidshrink/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidshrink.log")
	writeLog(t, path, "a\nb\nc\n")

	lines, offset, err := logs.Last(path, 2, nil)
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5, nil)
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", lines, offset, err)
	}
}

func TestLastLeavesPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidshrink.log")
	writeLog(t, path, "done\nhalf-writ")

	lines, offset, err := logs.Last(path, 10, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 1 || lines[0] != "done" || offset != 5 {
		t.Fatalf("unexpected result %#v offset %d", lines, offset)
	}
}

func TestMatchers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidshrink.log")
	writeLog(t, path, strings.Join([]string{
		`{"level":"info","msg":"claimed","event_type":"claimed","video_path":"/media/a.mkv"}`,
		`{"level":"warn","msg":"probe failed","event_type":"probe_failed","video_path":"/media/b.avi"}`,
		`{"level":"debug","msg":"ffmpeg starting","video_path":"/media/a.mkv"}`,
		`not json`,
		`{"level":"error","msg":"video failed","event_type":"video_failed","video_path":"/media/a.mkv"}`,
	}, "\n")+"\n")

	lines, _, err := logs.Last(path, 10, logs.ForVideo("a.mkv"))
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines for a.mkv, got %d", len(lines))
	}

	lines, _, _ = logs.Last(path, 10, logs.All(logs.ForVideo("a.mkv"), logs.AtLeast("info")))
	if len(lines) != 2 {
		t.Fatalf("expected debug record filtered out, got %#v", lines)
	}

	lines, _, _ = logs.Last(path, 10, logs.ForEvent("probe_failed"))
	if len(lines) != 1 || !strings.Contains(lines[0], "b.avi") {
		t.Fatalf("unexpected event match %#v", lines)
	}

	if logs.All(nil, nil) != nil {
		t.Fatal("All of nothing should keep every line")
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeLog(t, path, "start\n")
	_, offset, err := logs.Last(path, 1, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 20*time.Millisecond, nil, func(line string) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, line)
			if len(got) == 2 {
				cancel()
			}
			return nil
		})
	}()

	time.Sleep(60 * time.Millisecond)
	appendLog(t, path, "later\n")
	time.Sleep(60 * time.Millisecond)
	appendLog(t, path, "last\n")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(got, ",") != "later,last" {
		t.Fatalf("unexpected followed lines %v", got)
	}
}

func TestFollowRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidshrink.log")
	writeLog(t, path, "old line one\nold line two\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := make(chan string, 4)
	go func() {
		_ = logs.Follow(ctx, path, 1000, 20*time.Millisecond, nil, func(line string) error {
			lines <- line
			return nil
		})
	}()

	select {
	case line := <-lines:
		if line != "old line one" {
			t.Fatalf("expected rotation to restart at the top, got %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no lines after truncation")
	}
}
