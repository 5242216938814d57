package workflow

import (
	"context"
	"path/filepath"
	"sort"

	"vidshrink/internal/ledger"
	"vidshrink/internal/ledger/fsledger"
	"vidshrink/internal/library"
	"vidshrink/internal/logging"
	"vidshrink/internal/strategy"
)

// ScanOptions tune discovery.
type ScanOptions struct {
	// Roots default to the configured library roots.
	Roots []string
	// Rescan re-probes paths already in the ledger.
	Rescan bool
}

// ScanStats summarises a Scan.
type ScanStats struct {
	Found       int
	Known       int
	Added       int
	Refreshed   int
	ProbeErrors int
	Actions     map[strategy.Action]int
}

// Scan walks the library and upserts every new file into the SQLite ledger
// as pending or skipped. Known paths are left alone unless Rescan is set.
func (m *Manager) Scan(ctx context.Context, opts ScanOptions) (ScanStats, error) {
	stats := ScanStats{Actions: make(map[strategy.Action]int)}
	store, err := m.store()
	if err != nil {
		return stats, err
	}
	roots := opts.Roots
	if len(roots) == 0 {
		roots = m.cfg.Library.Roots
	}
	files, err := library.Walk(ctx, roots, library.Options{Extensions: m.cfg.Library.Extensions})
	if err != nil {
		return stats, err
	}
	stats.Found = len(files)

	known, err := store.KnownPaths(ctx)
	if err != nil {
		return stats, err
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		_, seen := known[file.Path]
		if seen && !opts.Rescan {
			stats.Known++
			continue
		}
		probe, err := m.backend.Probe(ctx, file.Path)
		if err != nil {
			stats.ProbeErrors++
			logging.WarnWithContext(m.logger, "probe failed during scan", "scan_probe_failed",
				logging.Video(file.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the file with ffprobe"),
				logging.String(logging.FieldImpact, "file not added to the ledger"),
			)
			continue
		}
		info := fsledger.MediaInfo(probe, file.Size)
		decision := strategy.Decide(m.policy, strategy.Input{
			Codec:         info.Codec,
			Bitrate:       info.Bitrate,
			Width:         info.Width,
			Height:        info.Height,
			AlreadyTagged: m.policy.IsTagged(probe.Comment),
			ContainerExt:  filepath.Ext(file.Path),
		})
		v := ledger.NewVideo(file.Path, info, decision)
		if err := store.Upsert(ctx, v); err != nil {
			return stats, err
		}
		stats.Actions[decision.Action]++
		if seen {
			stats.Refreshed++
		} else {
			stats.Added++
		}
		m.logger.Debug("video scanned",
			logging.Video(file.Path),
			logging.String("action", string(decision.Action)),
			logging.String("decision_reason", decision.Reason),
		)
	}
	m.logger.Info("scan complete",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.Int("found", stats.Found),
		logging.Int("added", stats.Added),
		logging.Int("refreshed", stats.Refreshed),
		logging.Int("known", stats.Known),
		logging.Int("probe_errors", stats.ProbeErrors),
	)
	return stats, nil
}

// PlanRow groups pending work by action.
type PlanRow struct {
	Action     strategy.Action
	Count      int
	TotalBytes int64
	Videos     []*ledger.Video
}

// Plan lists what a run would do without claiming anything. Rows are ordered
// by total size, largest first.
func (m *Manager) Plan(ctx context.Context) ([]PlanRow, error) {
	work, err := m.ledger.PendingWork(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[strategy.Action]int)
	var rows []PlanRow
	for _, v := range work {
		pos, ok := index[v.Action]
		if !ok {
			pos = len(rows)
			index[v.Action] = pos
			rows = append(rows, PlanRow{Action: v.Action})
		}
		rows[pos].Count++
		rows[pos].TotalBytes += v.SizeBytes
		rows[pos].Videos = append(rows[pos].Videos, v)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalBytes > rows[j].TotalBytes
	})
	return rows, nil
}
