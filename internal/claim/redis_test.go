package claim_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"vidshrink/internal/claim"
)

// Set VIDSHRINK_TEST_REDIS_ADDR to run against a scratch Redis instance.
func TestRedisStoreContract(t *testing.T) {
	addr := os.Getenv("VIDSHRINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VIDSHRINK_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	prefix := "vidshrink-test:" + uuid.NewString() + ":"
	now := time.Now()
	store, err := claim.NewRedisStore(ctx, claim.RedisOptions{Addr: addr, Prefix: prefix}, "worker-r",
		claim.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.RecoverStale(context.Background(), time.Nanosecond, false)
		_ = store.Close()
	})

	path := "/media/redis.mkv"
	if ok, err := store.Claim(ctx, path); err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, err := store.Claim(ctx, path); err != nil || ok {
		t.Fatalf("second claim should lose: %v %v", ok, err)
	}
	claims, err := store.List(ctx)
	if err != nil || len(claims) != 1 || claims[0].Hostname != "worker-r" {
		t.Fatalf("List: %v %+v", err, claims)
	}

	now = now.Add(48 * time.Hour)
	recovered, err := store.RecoverStale(ctx, 24*time.Hour, false)
	if err != nil || len(recovered) != 1 {
		t.Fatalf("RecoverStale: %v %+v", err, recovered)
	}
	if claimed, _ := store.IsClaimed(ctx, path); claimed {
		t.Fatal("expected claim removed")
	}
}
