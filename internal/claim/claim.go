package claim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"vidshrink/internal/logging"
)

// DefaultStaleAge is the age after which a claim is presumed abandoned.
const DefaultStaleAge = 24 * time.Hour

// corruptGrace protects markers that were just created and are still being written.
const corruptGrace = time.Minute

// ErrEmptyPath is returned when a claim operation receives no path.
var ErrEmptyPath = errors.New("claim: empty video path")

// Claim describes one marker in the coordination store.
type Claim struct {
	Key       string
	Location  string
	Hostname  string
	VideoPath string
	ClaimedAt time.Time
	// Corrupted is set when the marker payload could not be parsed.
	Corrupted bool
	Problem   string
	modTime   time.Time
}

// Age returns how long ago the claim was taken, relative to now.
func (c Claim) Age(now time.Time) time.Duration {
	if c.ClaimedAt.IsZero() {
		return 0
	}
	return now.Sub(c.ClaimedAt)
}

// Store is the coordination primitive shared by all workers.
type Store interface {
	// Claim atomically creates the marker for path. It returns false, nil when
	// another worker already holds it.
	Claim(ctx context.Context, path string) (bool, error)
	// Release deletes the marker. Releasing an absent marker is not an error.
	Release(ctx context.Context, path string) error
	// IsClaimed is a best-effort existence check.
	IsClaimed(ctx context.Context, path string) (bool, error)
	// List enumerates every marker, surfacing unparsable ones as Corrupted entries.
	List(ctx context.Context) ([]Claim, error)
	// RecoverStale removes markers older than maxAge or corrupted. With dryRun
	// it reports the same set without removing anything.
	RecoverStale(ctx context.Context, maxAge time.Duration, dryRun bool) ([]Claim, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "claims")
	return o
}

// Key returns the marker key for a video path: the hex SHA-256 of the cleaned,
// NFC-normalized absolute path.
func Key(path string) string {
	sum := sha256.Sum256([]byte(canonicalPath(path)))
	return hex.EncodeToString(sum[:])
}

func canonicalPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(path))
}

type payload struct {
	Hostname  string `json:"hostname"`
	VideoPath string `json:"video_path"`
	ClaimedAt string `json:"claimed_at"`
}

func encodePayload(hostname, path string, at time.Time) ([]byte, error) {
	return json.Marshal(payload{
		Hostname:  hostname,
		VideoPath: canonicalPath(path),
		ClaimedAt: at.UTC().Format(time.RFC3339Nano),
	})
}

// claimedAtLayouts accepts RFC 3339 as well as naive local timestamps written
// by older tooling.
var claimedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func decodePayload(data []byte) (payload, time.Time, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return payload{}, time.Time{}, fmt.Errorf("decode claim payload: %w", err)
	}
	if strings.TrimSpace(p.ClaimedAt) == "" {
		return p, time.Time{}, errors.New("claim payload missing claimed_at")
	}
	for _, layout := range claimedAtLayouts {
		var (
			ts  time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			ts, err = time.Parse(layout, p.ClaimedAt)
		} else {
			ts, err = time.ParseInLocation(layout, p.ClaimedAt, time.Local)
		}
		if err == nil {
			return p, ts, nil
		}
	}
	return p, time.Time{}, fmt.Errorf("claim payload has unparsable claimed_at %q", p.ClaimedAt)
}

func parseClaim(key, location string, data []byte, modTime time.Time) Claim {
	c := Claim{Key: key, Location: location, modTime: modTime}
	p, at, err := decodePayload(data)
	if err != nil {
		c.Corrupted = true
		c.Problem = err.Error()
		c.Hostname = p.Hostname
		c.VideoPath = p.VideoPath
		return c
	}
	c.Hostname = p.Hostname
	c.VideoPath = p.VideoPath
	c.ClaimedAt = at
	return c
}

// isStale applies the recovery rule shared by every backend.
func isStale(c Claim, now time.Time, maxAge time.Duration) bool {
	if c.Corrupted {
		if !c.modTime.IsZero() && c.modTime.After(now.Add(-corruptGrace)) {
			return false
		}
		return true
	}
	return c.ClaimedAt.Before(now.Add(-maxAge))
}

func normalizeMaxAge(maxAge time.Duration) time.Duration {
	if maxAge <= 0 {
		return DefaultStaleAge
	}
	return maxAge
}

func logRecovered(logger *slog.Logger, c Claim, dryRun bool) {
	attrs := []logging.Attr{
		logging.String("claim_key", c.Key),
		logging.String("holder", c.Hostname),
		logging.Video(c.VideoPath),
		logging.Bool("dry_run", dryRun),
	}
	if c.Corrupted {
		attrs = append(attrs, logging.String("problem", c.Problem))
	} else {
		attrs = append(attrs, logging.String("claimed_at", c.ClaimedAt.Format(time.RFC3339)))
	}
	logging.WarnWithContext(logger, "stale claim recovered", "claim_stale",
		append(attrs,
			logging.String(logging.FieldImpact, "video becomes eligible for another worker"),
			logging.String(logging.FieldErrorHint, "check whether the holder crashed mid-encode"),
		)...)
}
