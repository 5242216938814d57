package workflow_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"vidshrink/internal/backup"
	"vidshrink/internal/claim"
	"vidshrink/internal/config"
	"vidshrink/internal/ledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/testsupport"
	"vidshrink/internal/transcode"
	"vidshrink/internal/workflow"
)

type harness struct {
	t       *testing.T
	cfg     *config.Config
	store   *ledger.Store
	claims  claim.Store
	backend *testsupport.FakeBackend
	backup  *backup.Store
	mgr     *workflow.Manager
	root    string
}

type harnessOption func(*harness)

func withClaims(store claim.Store) harnessOption {
	return func(h *harness) { h.claims = store }
}

func withBackupRoot(root string) harnessOption {
	return func(h *harness) { h.backup = backup.New(root, 0, logging.NewNop()) }
}

func newHarness(t *testing.T, cfgOpts []testsupport.ConfigOption, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	h := &harness{
		t:       t,
		cfg:     cfg,
		store:   testsupport.MustOpenStore(t, cfg),
		claims:  claim.NewDirStore(cfg.Paths.ClaimDir, cfg.MachineName()),
		backend: testsupport.NewFakeBackend(),
		backup:  backup.New(cfg.Paths.BackupDir, 0, logging.NewNop()),
		root:    testsupport.LibraryRoot(cfg),
	}
	for _, opt := range opts {
		opt(h)
	}
	mgr, err := workflow.NewManager(cfg, workflow.Deps{
		Ledger:  h.store,
		Claims:  h.claims,
		Backend: h.backend,
		Backup:  h.backup,
		Logger:  logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h.mgr = mgr
	return h
}

// addVideo writes a library file of size bytes and registers its probe.
func (h *harness) addVideo(rel string, size int64, probe transcode.ProbeResult) string {
	h.t.Helper()
	path := filepath.Join(h.root, rel)
	testsupport.WriteFile(h.t, path, size)
	h.backend.SetProbe(path, probe)
	return path
}

func (h *harness) scan() {
	h.t.Helper()
	if _, err := h.mgr.Scan(context.Background(), workflow.ScanOptions{}); err != nil {
		h.t.Fatalf("Scan: %v", err)
	}
}

func (h *harness) video(path string) *ledger.Video {
	h.t.Helper()
	v, err := h.store.GetByPath(context.Background(), path)
	if err != nil {
		h.t.Fatalf("GetByPath(%s): %v", path, err)
	}
	return v
}

func (h *harness) eventNames(v *ledger.Video) string {
	h.t.Helper()
	events, err := h.store.RecentEvents(context.Background(), v.ID, 50)
	if err != nil {
		h.t.Fatalf("RecentEvents: %v", err)
	}
	names := make([]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		names = append(names, events[i].Event)
	}
	return strings.Join(names, ",")
}

func (h *harness) isClaimed(path string) bool {
	h.t.Helper()
	claimed, err := h.claims.IsClaimed(context.Background(), path)
	if err != nil {
		h.t.Fatalf("IsClaimed: %v", err)
	}
	return claimed
}

var (
	mpeg4SD    = transcode.ProbeResult{Codec: "mpeg4", Width: 720, Height: 480, Bitrate: 1_500_000}
	h264High   = transcode.ProbeResult{Codec: "h264", Width: 1920, Height: 1080, Bitrate: 6_000_000}
	hevcHD     = transcode.ProbeResult{Codec: "hevc", Width: 1920, Height: 1080, Bitrate: 3_000_000}
	h264Mid    = transcode.ProbeResult{Codec: "h264", Width: 1920, Height: 1080, Bitrate: 3_000_000}
	h264Tagged = transcode.ProbeResult{Codec: "h264", Width: 1920, Height: 1080, Bitrate: 2_000_000, Comment: "compressed_h264_v4"}
)
