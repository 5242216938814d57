package claim_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vidshrink/internal/claim"
)

func newDirStore(t *testing.T, host string, now func() time.Time) *claim.DirStore {
	t.Helper()
	opts := []claim.Option{}
	if now != nil {
		opts = append(opts, claim.WithClock(now))
	}
	return claim.NewDirStore(filepath.Join(t.TempDir(), "claims"), host, opts...)
}

func TestDirStoreClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newDirStore(t, "worker-a", nil)
	path := "/media/shows/pilot.mkv"

	ok, err := store.Claim(ctx, path)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = store.Claim(ctx, path)
	if err != nil {
		t.Fatalf("second claim returned error: %v", err)
	}
	if ok {
		t.Fatal("second claim must fail while the first is held")
	}
	claimed, err := store.IsClaimed(ctx, path)
	if err != nil || !claimed {
		t.Fatalf("IsClaimed: %v %v", claimed, err)
	}

	if err := store.Release(ctx, path); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := store.Release(ctx, path); err != nil {
		t.Fatalf("releasing an absent claim should not fail: %v", err)
	}
	ok, err = store.Claim(ctx, path)
	if err != nil || !ok {
		t.Fatalf("claim after release: ok=%v err=%v", ok, err)
	}
}

func TestDirStoreConcurrentClaimsHaveSingleWinner(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "claims")
	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store := claim.NewDirStore(dir, "worker")
			ok, err := store.Claim(ctx, "/media/movie.mp4")
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestDirStorePayload(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newDirStore(t, "worker-b", func() time.Time { return fixed })
	path := "/media/a b/clip.mov"

	if ok, err := store.Claim(ctx, path); err != nil || !ok {
		t.Fatalf("claim: %v %v", ok, err)
	}
	data, err := os.ReadFile(filepath.Join(store.Dir(), claim.Key(path)+".claim"))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode marker: %v", err)
	}
	if payload["hostname"] != "worker-b" || payload["video_path"] != path {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["claimed_at"] != "2024-03-01T12:00:00Z" {
		t.Fatalf("unexpected claimed_at %q", payload["claimed_at"])
	}

	c, found, err := store.Read(ctx, path)
	if err != nil || !found {
		t.Fatalf("Read: %v %v", found, err)
	}
	if !c.ClaimedAt.Equal(fixed) || c.Corrupted {
		t.Fatalf("unexpected claim %+v", c)
	}
}

func TestKeyNormalizesUnicodeAndCleansPath(t *testing.T) {
	composed := "/media/Caf\u00e9/clip.mp4"
	decomposed := "/media/Cafe\u0301/clip.mp4"
	if claim.Key(composed) != claim.Key(decomposed) {
		t.Fatal("expected NFC and NFD spellings to share a key")
	}
	if claim.Key("/media//x/../clip.mp4") != claim.Key("/media/clip.mp4") {
		t.Fatal("expected cleaned paths to share a key")
	}
	if claim.Key("/media/a.mp4") == claim.Key("/media/b.mp4") {
		t.Fatal("different paths must not share a key")
	}
}

func TestDirStoreRecoverStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-30 * time.Hour)
	store := newDirStore(t, "worker-c", func() time.Time { return clock })

	if ok, _ := store.Claim(ctx, "/media/old.mp4"); !ok {
		t.Fatal("claim old")
	}
	clock = now.Add(-time.Hour)
	if ok, _ := store.Claim(ctx, "/media/fresh.mp4"); !ok {
		t.Fatal("claim fresh")
	}
	corrupt := filepath.Join(store.Dir(), "deadbeef.claim")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt marker: %v", err)
	}
	old := now.Add(-time.Hour)
	if err := os.Chtimes(corrupt, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	clock = now

	preview, err := store.RecoverStale(ctx, 24*time.Hour, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(preview) != 2 {
		t.Fatalf("expected 2 stale claims in dry run, got %d: %+v", len(preview), preview)
	}
	all, _ := store.List(ctx)
	if len(all) != 3 {
		t.Fatalf("dry run must not remove markers, have %d", len(all))
	}

	recovered, err := store.RecoverStale(ctx, 24*time.Hour, false)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(recovered) != 2 {
		t.Fatalf("expected 2 recovered, got %d", len(recovered))
	}
	remaining, _ := store.List(ctx)
	if len(remaining) != 1 || remaining[0].VideoPath != "/media/fresh.mp4" {
		t.Fatalf("unexpected remaining claims %+v", remaining)
	}
	if claimed, _ := store.IsClaimed(ctx, "/media/old.mp4"); claimed {
		t.Fatal("old claim should be gone")
	}
}

func TestDirStoreRecentCorruptMarkerIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	store := newDirStore(t, "worker-d", nil)
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	partial := filepath.Join(store.Dir(), "cafe.claim")
	if err := os.WriteFile(partial, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	claims, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(claims) != 1 || !claims[0].Corrupted {
		t.Fatalf("expected one corrupted entry, got %+v", claims)
	}
	recovered, err := store.RecoverStale(ctx, time.Hour, false)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if len(recovered) != 0 {
		t.Fatalf("a marker still being written must survive, got %+v", recovered)
	}
}

func TestDirStoreCorruptGraceFollowsStoreClock(t *testing.T) {
	ctx := context.Background()
	written := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	clock := written.Add(30 * time.Second)
	store := newDirStore(t, "worker-f", func() time.Time { return clock })
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	partial := filepath.Join(store.Dir(), "beef.claim")
	if err := os.WriteFile(partial, []byte("{\"hostname\":"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(partial, written, written); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	recovered, err := store.RecoverStale(ctx, 24*time.Hour, false)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if len(recovered) != 0 {
		t.Fatalf("marker inside the grace window must survive, got %+v", recovered)
	}

	clock = written.Add(2 * time.Minute)
	recovered, err = store.RecoverStale(ctx, 24*time.Hour, false)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if len(recovered) != 1 || !recovered[0].Corrupted {
		t.Fatalf("corrupt marker past the grace window should be recovered, got %+v", recovered)
	}
}

func TestDirStoreAcceptsNaiveTimestamps(t *testing.T) {
	ctx := context.Background()
	store := newDirStore(t, "worker-e", nil)
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	path := "/media/legacy.avi"
	body := `{"hostname": "old-box", "video_path": "/media/legacy.avi", "claimed_at": "2020-01-02T03:04:05.123456"}`
	if err := os.WriteFile(filepath.Join(store.Dir(), claim.Key(path)+".claim"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, found, err := store.Read(ctx, path)
	if err != nil || !found {
		t.Fatalf("Read: %v %v", found, err)
	}
	if c.Corrupted || c.ClaimedAt.Year() != 2020 || c.Hostname != "old-box" {
		t.Fatalf("unexpected claim %+v", c)
	}
	recovered, err := store.RecoverStale(ctx, 0, false)
	if err != nil || len(recovered) != 1 {
		t.Fatalf("expected legacy claim to be stale under the default age: %v %+v", err, recovered)
	}
}

func TestDirStoreRejectsEmptyPath(t *testing.T) {
	store := newDirStore(t, "worker", nil)
	if _, err := store.Claim(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
