package claim

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vidshrink/internal/logging"
)

const markerExt = ".claim"

// DirStore keeps one marker file per claimed video in a shared directory.
type DirStore struct {
	dir      string
	hostname string
	now      func() time.Time
	logger   *slog.Logger
}

// NewDirStore returns a directory-backed store. hostname is recorded in each
// marker so operators can see which worker holds a video.
func NewDirStore(dir, hostname string, opts ...Option) *DirStore {
	o := buildOptions(opts)
	return &DirStore{dir: dir, hostname: hostname, now: o.now, logger: o.logger}
}

// Dir returns the marker directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) markerPath(path string) string {
	return filepath.Join(s.dir, Key(path)+markerExt)
}

func (s *DirStore) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure claim dir: %w", err)
	}
	return nil
}

// Claim creates the marker with O_CREAT|O_EXCL so exactly one worker wins.
func (s *DirStore) Claim(ctx context.Context, path string) (bool, error) {
	if canonicalPath(path) == "" {
		return false, ErrEmptyPath
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ensureDir(); err != nil {
		return false, err
	}
	data, err := encodePayload(s.hostname, path, s.now())
	if err != nil {
		return false, err
	}

	marker := s.markerPath(path)
	file, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create claim %s: %w", marker, err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(marker)
		return false, fmt.Errorf("write claim %s: %w", marker, err)
	}
	if err := file.Sync(); err != nil {
		s.logger.Debug("claim fsync failed", logging.String("claim_key", Key(path)), logging.Error(err))
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(marker)
		return false, fmt.Errorf("close claim %s: %w", marker, err)
	}
	s.logger.Debug("claim acquired",
		logging.Video(path),
		logging.String("claim_key", Key(path)),
	)
	return true, nil
}

// Release deletes the marker.
func (s *DirStore) Release(_ context.Context, path string) error {
	if canonicalPath(path) == "" {
		return ErrEmptyPath
	}
	if err := os.Remove(s.markerPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// IsClaimed reports whether a marker exists for path.
func (s *DirStore) IsClaimed(_ context.Context, path string) (bool, error) {
	if canonicalPath(path) == "" {
		return false, ErrEmptyPath
	}
	_, err := os.Stat(s.markerPath(path))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat claim: %w", err)
	}
}

// Read returns the claim for path, if any.
func (s *DirStore) Read(_ context.Context, path string) (Claim, bool, error) {
	marker := s.markerPath(path)
	c, err := s.readMarker(marker)
	if errors.Is(err, fs.ErrNotExist) {
		return Claim{}, false, nil
	}
	if err != nil {
		return Claim{}, false, err
	}
	return c, true, nil
}

func (s *DirStore) readMarker(marker string) (Claim, error) {
	info, err := os.Stat(marker)
	if err != nil {
		return Claim{}, err
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		return Claim{}, err
	}
	key := strings.TrimSuffix(filepath.Base(marker), markerExt)
	return parseClaim(key, marker, data, info.ModTime()), nil
}

// List enumerates every marker in the directory, sorted by key.
func (s *DirStore) List(ctx context.Context) ([]Claim, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read claim dir: %w", err)
	}
	claims := make([]Claim, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), markerExt) {
			continue
		}
		c, err := s.readMarker(filepath.Join(s.dir, entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			// released between ReadDir and read
			continue
		}
		if err != nil {
			claims = append(claims, Claim{
				Key:       strings.TrimSuffix(entry.Name(), markerExt),
				Location:  filepath.Join(s.dir, entry.Name()),
				Corrupted: true,
				Problem:   err.Error(),
			})
			continue
		}
		claims = append(claims, c)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].Key < claims[j].Key })
	return claims, nil
}

// RecoverStale removes markers older than maxAge and corrupted markers.
func (s *DirStore) RecoverStale(ctx context.Context, maxAge time.Duration, dryRun bool) ([]Claim, error) {
	maxAge = normalizeMaxAge(maxAge)
	claims, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var recovered []Claim
	for _, c := range claims {
		if !isStale(c, now, maxAge) {
			continue
		}
		if !dryRun {
			if err := os.Remove(c.Location); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return recovered, fmt.Errorf("remove stale claim %s: %w", c.Location, err)
			}
		}
		logRecovered(s.logger, c, dryRun)
		recovered = append(recovered, c)
	}
	return recovered, nil
}

var _ Store = (*DirStore)(nil)
