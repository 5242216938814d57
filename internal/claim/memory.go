package claim

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for tests. BeforeInsert, when set, runs after
// the existence check and before the insert, outside the lock, so tests can
// interleave a competing Claim deterministically.
type Memory struct {
	mu       sync.Mutex
	claims   map[string]Claim
	hostname string
	now      func() time.Time
	logger   *slog.Logger

	BeforeInsert func(path string)
}

// NewMemory returns an empty in-memory store.
func NewMemory(hostname string, opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{claims: make(map[string]Claim), hostname: hostname, now: o.now, logger: o.logger}
}

// Claim inserts the claim if absent. The check and insert are re-done under
// the lock after BeforeInsert so the store stays exclusive under interleaving.
func (m *Memory) Claim(ctx context.Context, path string) (bool, error) {
	if canonicalPath(path) == "" {
		return false, ErrEmptyPath
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := Key(path)

	m.mu.Lock()
	_, exists := m.claims[key]
	hook := m.BeforeInsert
	m.mu.Unlock()
	if exists {
		return false, nil
	}
	if hook != nil {
		hook(path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.claims[key]; exists {
		return false, nil
	}
	m.claims[key] = Claim{
		Key:       key,
		Location:  "memory:" + key,
		Hostname:  m.hostname,
		VideoPath: canonicalPath(path),
		ClaimedAt: m.now().UTC(),
	}
	return true, nil
}

// Release removes the claim.
func (m *Memory) Release(_ context.Context, path string) error {
	if canonicalPath(path) == "" {
		return ErrEmptyPath
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, Key(path))
	return nil
}

// IsClaimed reports whether a claim exists.
func (m *Memory) IsClaimed(_ context.Context, path string) (bool, error) {
	if canonicalPath(path) == "" {
		return false, ErrEmptyPath
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claims[Key(path)]
	return ok, nil
}

// Inject stores c verbatim, replacing any claim with the same key. Tests use
// it to plant stale or corrupted entries.
func (m *Memory) Inject(c Claim) {
	if c.Key == "" {
		c.Key = Key(c.VideoPath)
	}
	if c.Location == "" {
		c.Location = "memory:" + c.Key
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[c.Key] = c
}

// List returns all claims sorted by key.
func (m *Memory) List(_ context.Context) ([]Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Claim, 0, len(m.claims))
	for _, c := range m.claims {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// RecoverStale removes stale and corrupted claims.
func (m *Memory) RecoverStale(_ context.Context, maxAge time.Duration, dryRun bool) ([]Claim, error) {
	maxAge = normalizeMaxAge(maxAge)
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var recovered []Claim
	for key, c := range m.claims {
		if !isStale(c, now, maxAge) {
			continue
		}
		if !dryRun {
			delete(m.claims, key)
		}
		logRecovered(m.logger, c, dryRun)
		recovered = append(recovered, c)
	}
	sort.Slice(recovered, func(i, j int) bool { return recovered[i].Key < recovered[j].Key })
	return recovered, nil
}

var _ Store = (*Memory)(nil)
