package fsledger_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidshrink/internal/claim"
	"vidshrink/internal/ledger"
	"vidshrink/internal/ledger/fsledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/strategy"
	"vidshrink/internal/transcode"
)

type fakeProber struct {
	results map[string]transcode.ProbeResult
	calls   []string
}

func (f *fakeProber) Probe(_ context.Context, path string) (transcode.ProbeResult, error) {
	f.calls = append(f.calls, path)
	res, ok := f.results[filepath.Base(path)]
	if !ok {
		return transcode.ProbeResult{}, errors.New("unreadable")
	}
	return res, nil
}

func writeVideo(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	root   string
	ledger *fsledger.Ledger
	prober *fakeProber
	claims *claim.Memory
	events string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	policy, err := strategy.Lookup("v4")
	if err != nil {
		t.Fatal(err)
	}
	base := t.TempDir()
	root := filepath.Join(base, "library")
	prober := &fakeProber{results: map[string]transcode.ProbeResult{}}
	claims := claim.NewMemory("other-host")
	events := filepath.Join(base, "logs", "events-test.jsonl")
	l, err := fsledger.New(fsledger.Options{
		Roots:        []string{root},
		Extensions:   []string{".mp4", ".mkv", ".avi"},
		Policy:       policy,
		Prober:       prober,
		Claims:       claims,
		EventLogPath: events,
		Logger:       logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.SetClock(func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) })
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	return fixture{root: root, ledger: l, prober: prober, claims: claims, events: events}
}

func TestPendingWorkInfersStateFromFiles(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	writeVideo(t, filepath.Join(fx.root, "h264.mp4"), 300)
	fx.prober.results["h264.mp4"] = transcode.ProbeResult{Codec: "h264", Width: 1920, Height: 1080, Bitrate: 4_000_000}
	writeVideo(t, filepath.Join(fx.root, "old.avi"), 500)
	fx.prober.results["old.avi"] = transcode.ProbeResult{Codec: "mpeg4", Width: 640, Height: 480, Bitrate: 1_000_000}
	writeVideo(t, filepath.Join(fx.root, "done.mp4"), 900)
	fx.prober.results["done.mp4"] = transcode.ProbeResult{Codec: "h264", Width: 1280, Height: 720, Comment: "compressed_h264_v4"}
	writeVideo(t, filepath.Join(fx.root, "hevc.mp4"), 200)
	fx.prober.results["hevc.mp4"] = transcode.ProbeResult{Codec: "hevc", Width: 1920, Height: 1080}
	writeVideo(t, filepath.Join(fx.root, "gone_skip.mp4"), 999)
	writeVideo(t, filepath.Join(fx.root, "broken.mkv"), 50)
	writeVideo(t, filepath.Join(fx.root, "held.mkv"), 800)
	fx.prober.results["held.mkv"] = transcode.ProbeResult{Codec: "h264"}
	if ok, _ := fx.claims.Claim(ctx, filepath.Join(fx.root, "held.mkv")); !ok {
		t.Fatal("seed claim")
	}

	work, err := fx.ledger.PendingWork(ctx)
	if err != nil {
		t.Fatalf("PendingWork: %v", err)
	}
	got := make([]string, 0, len(work))
	for _, v := range work {
		got = append(got, v.Filename+"="+string(v.Action))
		if v.ID != 0 {
			t.Fatalf("filesystem ledger has no ids, got %d", v.ID)
		}
	}
	want := "old.avi=encode,h264.mp4=encode,hevc.mp4=skip_hevc"
	if strings.Join(got, ",") != want {
		t.Fatalf("pending work = %v, want %s", got, want)
	}
	if work[2].Status != ledger.StatusSkipped {
		t.Fatalf("skip decision should arrive as skipped, got %s", work[2].Status)
	}
	for _, path := range fx.prober.calls {
		if strings.Contains(path, "_skip") || strings.Contains(path, "held") {
			t.Fatalf("skipped or claimed files must not be probed: %s", path)
		}
	}
	if !fx.ledger.RequiresRevalidation() {
		t.Fatal("filesystem ledger must require revalidation")
	}
}

func TestRecordStateRenamesSkips(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(fx.root, "clip.mp4")
	writeVideo(t, path, 10)
	writeVideo(t, filepath.Join(fx.root, "clip_skip.mp4"), 1)

	v := &ledger.Video{Path: path, Filename: "clip.mp4", Action: strategy.ActionEncode}
	if err := fx.ledger.RecordState(ctx, v, ledger.StatusSkippedNoSavings); err != nil {
		t.Fatalf("RecordState: %v", err)
	}
	want := filepath.Join(fx.root, "clip_skip_1.mp4")
	if v.Path != want || v.Filename != "clip_skip_1.mp4" {
		t.Fatalf("expected renamed path %q, got %q", want, v.Path)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	if v.Status != ledger.StatusSkippedNoSavings {
		t.Fatalf("status = %s", v.Status)
	}
}

func TestRecordStateLeavesTaggedAndInFlightFilesAlone(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(fx.root, "tagged.mp4")
	writeVideo(t, path, 10)

	tagged := &ledger.Video{Path: path, Action: strategy.ActionSkipTagged}
	if err := fx.ledger.RecordState(ctx, tagged, ledger.StatusSkipped); err != nil {
		t.Fatalf("RecordState: %v", err)
	}
	working := &ledger.Video{Path: path, Action: strategy.ActionEncode}
	for _, status := range []ledger.Status{ledger.StatusClaimed, ledger.StatusEncoding, ledger.StatusFailed} {
		if err := fx.ledger.RecordState(ctx, working, status, ledger.WithError("x")); err != nil {
			t.Fatalf("RecordState(%s): %v", status, err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should keep its name: %v", err)
	}
	if working.ErrorMessage != "x" {
		t.Fatal("fields should still be applied")
	}
	if err := fx.ledger.RecordState(ctx, working, ledger.Status("bogus")); err == nil {
		t.Fatal("expected unknown status error")
	}
}

func TestEventsAppendAsJSONLines(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	v := &ledger.Video{Path: "/media/a.mp4"}
	if err := fx.ledger.AppendEvent(ctx, v, "worker-1", "claimed", ""); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := fx.ledger.AppendEvent(ctx, v, "worker-1", "compressed", "42.0% saved in 12s"); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := fx.ledger.AppendEvent(ctx, nil, "worker-1", " ", ""); err == nil {
		t.Fatal("expected error for empty event")
	}

	events, err := fx.ledger.ReadEvents()
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[1].Event != "compressed" || events[1].Details != "42.0% saved in 12s" || events[1].VideoPath != "/media/a.mp4" {
		t.Fatalf("unexpected event %+v", events[1])
	}
	if events[0].Timestamp.IsZero() || events[0].Machine != "worker-1" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestCensusCountsEachBucket(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	writeVideo(t, filepath.Join(fx.root, "a.mp4"), 10)
	fx.prober.results["a.mp4"] = transcode.ProbeResult{Codec: "h264", Comment: "compressed_hevc_v3"}
	writeVideo(t, filepath.Join(fx.root, "b_skip.mp4"), 20)
	writeVideo(t, filepath.Join(fx.root, "c.mkv"), 30)
	fx.prober.results["c.mkv"] = transcode.ProbeResult{Codec: "h264"}
	writeVideo(t, filepath.Join(fx.root, "d.mkv"), 40)
	fx.prober.results["d.mkv"] = transcode.ProbeResult{Codec: "h264"}
	writeVideo(t, filepath.Join(fx.root, "e.avi"), 5)
	if ok, _ := fx.claims.Claim(ctx, filepath.Join(fx.root, "d.mkv")); !ok {
		t.Fatal("seed claim")
	}

	census, err := fx.ledger.Census(ctx)
	if err != nil {
		t.Fatalf("Census: %v", err)
	}
	if census.Compressed != (fsledger.Bucket{Count: 1, Bytes: 10}) {
		t.Fatalf("compressed = %+v", census.Compressed)
	}
	if census.Skipped != (fsledger.Bucket{Count: 1, Bytes: 20}) {
		t.Fatalf("skipped = %+v", census.Skipped)
	}
	if census.Remaining != (fsledger.Bucket{Count: 1, Bytes: 30}) {
		t.Fatalf("remaining = %+v", census.Remaining)
	}
	if census.Claimed != (fsledger.Bucket{Count: 1, Bytes: 40}) {
		t.Fatalf("claimed = %+v", census.Claimed)
	}
	if census.Unreadable.Count != 1 || census.Total() != 5 {
		t.Fatalf("unexpected census %+v", census)
	}
}

func TestNewRequiresProberAndLog(t *testing.T) {
	if _, err := fsledger.New(fsledger.Options{EventLogPath: "/tmp/x"}); err == nil {
		t.Fatal("expected error without prober")
	}
	if _, err := fsledger.New(fsledger.Options{Prober: &fakeProber{}}); err == nil {
		t.Fatal("expected error without event log path")
	}
}
