// Package library enumerates candidate video files under the configured roots.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SkipMarker is appended to the stem of files the filesystem ledger has
// permanently set aside.
const SkipMarker = "_skip"

// File is one candidate video.
type File struct {
	Path    string
	Size    int64
	Skipped bool
}

// Options filters a walk.
type Options struct {
	Extensions []string
	// IncludeSkipped returns files carrying SkipMarker instead of dropping them.
	IncludeSkipped bool
}

// IsHidden reports whether a file or directory name is dot-prefixed.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IsTemporary reports whether name is a hidden file or in-progress artifact.
func IsTemporary(name string) bool {
	return IsHidden(name) || strings.Contains(strings.ToLower(name), ".tmp")
}

// HasSkipMarker reports whether the file stem carries SkipMarker.
func HasSkipMarker(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.Contains(stem, SkipMarker)
}

// IsProcessable reports whether name may be handed to a worker.
func IsProcessable(name string) bool {
	return !IsTemporary(name) && !HasSkipMarker(name)
}

// SkipPath returns the path a set-aside file is renamed to. The extension is
// kept so the file stays playable.
func SkipPath(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	return filepath.Join(filepath.Dir(path), stem+SkipMarker+ext)
}

// Walk returns matching files under roots, sorted by size descending then path.
// Hidden directories are not entered. A root that does not exist is an error.
func Walk(ctx context.Context, roots []string, opts Options) ([]File, error) {
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}

	seen := make(map[string]struct{})
	var files []File
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("library root %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("library root %s is not a directory", root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrPermission) && path != root {
					return fs.SkipDir
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && IsHidden(name) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || IsTemporary(name) {
				return nil
			}
			if len(exts) > 0 {
				if _, ok := exts[strings.ToLower(filepath.Ext(name))]; !ok {
					return nil
				}
			}
			skipped := HasSkipMarker(name)
			if skipped && !opts.IncludeSkipped {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			seen[path] = struct{}{}
			files = append(files, File{Path: path, Size: fi.Size(), Skipped: skipped})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Size != files[j].Size {
			return files[i].Size > files[j].Size
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}
