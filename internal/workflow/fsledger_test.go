package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vidshrink/internal/backup"
	"vidshrink/internal/claim"
	"vidshrink/internal/config"
	"vidshrink/internal/ledger/fsledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/strategy"
	"vidshrink/internal/testsupport"
	"vidshrink/internal/transcode"
	"vidshrink/internal/workflow"
)

type fsHarness struct {
	t       *testing.T
	cfg     *config.Config
	ledger  *fsledger.Ledger
	claims  *claim.DirStore
	backend *testsupport.FakeBackend
	mgr     *workflow.Manager
	root    string
}

func newFSHarness(t *testing.T) *fsHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithLedgerBackend(config.LedgerFilesystem))
	policy, err := strategy.Lookup(cfg.Strategy.Policy)
	if err != nil {
		t.Fatal(err)
	}
	fx := &fsHarness{
		t:       t,
		cfg:     cfg,
		claims:  claim.NewDirStore(cfg.Paths.ClaimDir, cfg.MachineName()),
		backend: testsupport.NewFakeBackend(),
		root:    testsupport.LibraryRoot(cfg),
	}
	fx.ledger, err = fsledger.New(fsledger.Options{
		Roots:        cfg.Library.Roots,
		Extensions:   cfg.Library.Extensions,
		Policy:       policy,
		Prober:       fx.backend,
		Claims:       fx.claims,
		EventLogPath: cfg.EventLogPath(),
		Logger:       logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("fsledger.New: %v", err)
	}
	fx.mgr, err = workflow.NewManager(cfg, workflow.Deps{
		Ledger:  fx.ledger,
		Claims:  fx.claims,
		Backend: fx.backend,
		Backup:  backup.New(cfg.Paths.BackupDir, 0, logging.NewNop()),
		Policy:  policy,
		Logger:  logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return fx
}

func (fx *fsHarness) add(name string, size int64, probe transcode.ProbeResult) string {
	fx.t.Helper()
	path := filepath.Join(fx.root, name)
	testsupport.WriteFile(fx.t, path, size)
	fx.backend.SetProbe(path, probe)
	return path
}

func TestFilesystemLedgerRun(t *testing.T) {
	fx := newFSHarness(t)
	ctx := context.Background()
	source := fx.add("old.avi", 2000, mpeg4SD)
	efficient := fx.add("modern.mp4", 1000, hevcHD)
	tagged := fx.add("finished.mp4", 500, h264Tagged)

	stats, err := fx.mgr.Run(ctx, workflow.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Compressed != 1 || stats.Skipped != 1 || stats.Pending != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	final := filepath.Join(fx.root, "old.mp4")
	if _, err := os.Stat(final); err != nil {
		t.Fatalf("artifact not committed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.cfg.Paths.BackupDir, source)); err != nil {
		t.Fatalf("original not backed up: %v", err)
	}
	if _, err := os.Stat(efficient); !os.IsNotExist(err) {
		t.Fatal("skip decision should rename the file")
	}
	if _, err := os.Stat(filepath.Join(fx.root, "modern_skip.mp4")); err != nil {
		t.Fatalf("expected skip marker rename: %v", err)
	}
	if _, err := os.Stat(tagged); err != nil {
		t.Fatal("tagged file must be left alone")
	}

	events, err := fx.ledger.ReadEvents()
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	var names []string
	for _, e := range events {
		names = append(names, e.Event)
	}
	want := []string{"claimed", "encoding_started", "compressed", "skipped"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}

	fx.backend.SetProbe(final, h264Tagged)
	again, err := fx.mgr.Run(ctx, workflow.RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Pending != 0 {
		t.Fatalf("nothing should remain, got %+v", again)
	}
}

func TestFilesystemLedgerAbortsWhenTagAppearsAfterListing(t *testing.T) {
	fx := newFSHarness(t)
	ctx := context.Background()
	source := fx.add("race.mkv", 1000, mpeg4SD)

	work, err := fx.ledger.PendingWork(ctx)
	if err != nil || len(work) != 1 {
		t.Fatalf("PendingWork: %v %d", err, len(work))
	}
	fx.backend.SetProbe(source, transcode.ProbeResult{Codec: "h264", Comment: "compressed_h264_v4"})

	res, err := fx.mgr.Process(ctx, work[0])
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != workflow.OutcomeAborted {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if claimed, _ := fx.claims.IsClaimed(ctx, source); claimed {
		t.Fatal("abort must release the claim")
	}
	if events, _ := fx.ledger.ReadEvents(); len(events) != 0 {
		t.Fatalf("abort must not log events, got %+v", events)
	}
	if len(fx.backend.Encoded) != 0 {
		t.Fatal("aborted file must not be encoded")
	}
}

func TestFilesystemLedgerNoSavingsSetsFileAside(t *testing.T) {
	fx := newFSHarness(t)
	ctx := context.Background()
	source := fx.add("dense.mp4", 1000, h264High)
	fx.backend.OutputSize = func(string, int64) int64 { return 990 }

	stats, err := fx.mgr.Run(ctx, workflow.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.NoSavings != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, err := os.Stat(filepath.Join(fx.root, "dense_skip.mp4")); err != nil {
		t.Fatalf("expected skip rename: %v", err)
	}
	if claimed, _ := fx.claims.IsClaimed(ctx, source); !claimed {
		t.Fatal("claim is retained after no savings by default")
	}
	census, err := fx.ledger.Census(ctx)
	if err != nil {
		t.Fatalf("Census: %v", err)
	}
	if census.Skipped.Count != 1 || census.Remaining.Count != 0 {
		t.Fatalf("unexpected census %+v", census)
	}
}
