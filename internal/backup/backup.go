// Package backup keeps originals reversible: before an artifact replaces a
// source file the original is moved to a mirror of its absolute path under
// the backup root.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"

	"vidshrink/internal/fileutil"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

// Store moves originals into and out of the backup tree.
type Store struct {
	root    string
	minFree uint64
	logger  *slog.Logger
	free    func(ctx context.Context, path string) (uint64, error)
}

// New returns a Store rooted at root. minFreeBytes is the headroom that must
// remain on the backup volume after a move; zero disables the check.
func New(root string, minFreeBytes uint64, logger *slog.Logger) *Store {
	return &Store{
		root:    filepath.Clean(root),
		minFree: minFreeBytes,
		logger:  logging.NewComponentLogger(logger, "backup"),
		free:    diskFree,
	}
}

func diskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Root returns the backup root.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the mirrored backup location for src, before collision handling.
func (s *Store) PathFor(src string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(src))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", src, err)
	}
	rel := strings.TrimLeft(abs, string(filepath.Separator))
	if vol := filepath.VolumeName(rel); vol != "" {
		rel = strings.TrimPrefix(rel, vol)
	}
	return filepath.Join(s.root, rel), nil
}

// Move relocates src into the backup tree and returns the path it landed at.
// An existing backup is never overwritten; the new one gets a _N suffix.
func (s *Store) Move(ctx context.Context, src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", services.Wrap(services.ErrBackup, "backup", "stat original", "", err)
	}
	target, err := s.PathFor(src)
	if err != nil {
		return "", services.Wrap(services.ErrBackup, "backup", "resolve path", "", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", services.Wrap(services.ErrBackup, "backup", "create mirror dir", "", err)
	}
	if err := s.ensureSpace(ctx, info.Size()); err != nil {
		return "", err
	}
	target = fileutil.UniquePath(target)

	copied, err := fileutil.MoveFile(src, target)
	if err != nil {
		return "", services.Wrap(services.ErrBackup, "backup", "move original", "", err)
	}
	s.logger.Debug("original backed up",
		logging.Video(src),
		logging.String("backup_path", target),
		logging.Bool("copied", copied),
	)
	return target, nil
}

// Restore moves a backup over dst, removing whatever currently sits at dst.
func (s *Store) Restore(ctx context.Context, backupPath, dst string) error {
	if filepath.Clean(backupPath) == filepath.Clean(dst) {
		return errors.New("restore: backup and destination are the same path")
	}
	if _, err := os.Stat(backupPath); err != nil {
		return services.Wrap(services.ErrNotFound, "restore", "stat backup", backupPath, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrBackup, "restore", "remove current file", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return services.Wrap(services.ErrBackup, "restore", "create parent dir", "", err)
	}
	if _, err := fileutil.MoveFile(backupPath, dst); err != nil {
		return services.Wrap(services.ErrBackup, "restore", "move backup", "", err)
	}
	s.logger.Debug("original restored",
		logging.Video(dst),
		logging.String("backup_path", backupPath),
	)
	return nil
}

// Exists reports whether a backup file is present.
func (s *Store) Exists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *Store) ensureSpace(ctx context.Context, size int64) error {
	if s.minFree == 0 || s.free == nil {
		return nil
	}
	free, err := s.free(ctx, s.root)
	if err != nil {
		logging.WarnWithContext(s.logger, "backup free space unavailable", "backup_space_unknown",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the backup volume is mounted"),
			logging.String(logging.FieldImpact, "backup proceeds without a space check"),
		)
		return nil
	}
	need := uint64(size) + s.minFree
	if free < need {
		return services.Wrap(services.ErrBackup, "backup", "check free space",
			fmt.Sprintf("%s free on %s, need %s", humanize.IBytes(free), s.root, humanize.IBytes(need)), nil)
	}
	return nil
}
