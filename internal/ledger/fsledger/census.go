package fsledger

import (
	"context"
	"fmt"

	"vidshrink/internal/library"
	"vidshrink/internal/logging"
)

// Bucket is a file count with total size.
type Bucket struct {
	Count int
	Bytes int64
}

func (b *Bucket) add(size int64) {
	b.Count++
	b.Bytes += size
}

// Census is a point-in-time breakdown of the library.
type Census struct {
	Compressed Bucket
	Skipped    Bucket
	Claimed    Bucket
	Remaining  Bucket
	Unreadable Bucket
}

// Total returns the number of files counted.
func (c Census) Total() int {
	return c.Compressed.Count + c.Skipped.Count + c.Claimed.Count + c.Remaining.Count + c.Unreadable.Count
}

// Census walks the library and classifies every candidate file. Each
// unclaimed, unskipped file is probed for the tag, so this costs one ffprobe
// per file.
func (l *Ledger) Census(ctx context.Context) (Census, error) {
	var census Census
	files, err := library.Walk(ctx, l.roots, library.Options{Extensions: l.extensions, IncludeSkipped: true})
	if err != nil {
		return census, err
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return census, err
		}
		if file.Skipped {
			census.Skipped.add(file.Size)
			continue
		}
		if l.claims != nil {
			claimed, err := l.claims.IsClaimed(ctx, file.Path)
			if err != nil {
				return census, fmt.Errorf("check claim for %s: %w", file.Path, err)
			}
			if claimed {
				census.Claimed.add(file.Size)
				continue
			}
		}
		probe, err := l.prober.Probe(ctx, file.Path)
		if err != nil {
			l.logger.Debug("census probe failed",
				logging.Video(file.Path),
				logging.Error(err),
			)
			census.Unreadable.add(file.Size)
			continue
		}
		if l.policy.IsTagged(probe.Comment) {
			census.Compressed.add(file.Size)
			continue
		}
		census.Remaining.add(file.Size)
	}
	return census, nil
}
