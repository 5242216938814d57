// Package fsledger is the schema-less ledger: job state is inferred from the
// files themselves. The idempotency tag marks finished work and a _skip stem
// suffix marks files set aside for good. Nothing else persists, so pending
// work can go stale between listing and claiming and the worker must re-probe
// after it wins a claim.
package fsledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vidshrink/internal/claim"
	"vidshrink/internal/fileutil"
	"vidshrink/internal/ledger"
	"vidshrink/internal/library"
	"vidshrink/internal/logging"
	"vidshrink/internal/strategy"
	"vidshrink/internal/transcode"
)

// Prober reads container metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (transcode.ProbeResult, error)
}

// Options configures a Ledger.
type Options struct {
	Roots        []string
	Extensions   []string
	Policy       strategy.Policy
	Prober       Prober
	EventLogPath string
	Logger       *slog.Logger
	// Claims, when set, lets PendingWork leave out files another machine holds.
	Claims claim.Store
}

// Ledger infers job state from the library on every call.
type Ledger struct {
	roots        []string
	extensions   []string
	policy       strategy.Policy
	prober       Prober
	claims       claim.Store
	eventLogPath string
	logger       *slog.Logger
	now          func() time.Time

	eventsMu sync.Mutex
}

var _ ledger.Ledger = (*Ledger)(nil)

// New validates opts and returns a Ledger.
func New(opts Options) (*Ledger, error) {
	if opts.Prober == nil {
		return nil, errors.New("fsledger: prober is required")
	}
	if strings.TrimSpace(opts.EventLogPath) == "" {
		return nil, errors.New("fsledger: event log path is required")
	}
	return &Ledger{
		roots:        opts.Roots,
		extensions:   opts.Extensions,
		policy:       opts.Policy,
		prober:       opts.Prober,
		claims:       opts.Claims,
		eventLogPath: opts.EventLogPath,
		logger:       logging.NewComponentLogger(opts.Logger, "fsledger"),
		now:          time.Now,
	}, nil
}

// SetClock overrides the event timestamp source.
func (l *Ledger) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// RequiresRevalidation is always true: listing and claiming are not atomic here.
func (l *Ledger) RequiresRevalidation() bool {
	return true
}

// PendingWork walks the roots, drops tagged files, and decides the rest.
// Files decided as skips are returned too so the worker can set them aside.
func (l *Ledger) PendingWork(ctx context.Context) ([]*ledger.Video, error) {
	files, err := library.Walk(ctx, l.roots, library.Options{Extensions: l.extensions})
	if err != nil {
		return nil, err
	}
	videos := make([]*ledger.Video, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.claims != nil {
			claimed, err := l.claims.IsClaimed(ctx, file.Path)
			if err != nil {
				return nil, fmt.Errorf("check claim for %s: %w", file.Path, err)
			}
			if claimed {
				continue
			}
		}
		probe, err := l.prober.Probe(ctx, file.Path)
		if err != nil {
			logging.WarnWithContext(l.logger, "probe failed; file left for a later pass", "probe_failed",
				logging.Video(file.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the file with ffprobe"),
			)
			continue
		}
		if l.policy.IsTagged(probe.Comment) {
			continue
		}
		info := MediaInfo(probe, file.Size)
		decision := strategy.Decide(l.policy, strategy.Input{
			Codec:        info.Codec,
			Bitrate:      info.Bitrate,
			Width:        info.Width,
			Height:       info.Height,
			ContainerExt: filepath.Ext(file.Path),
		})
		v := ledger.NewVideo(file.Path, info, decision)
		v.ScannedAt = l.now().UTC()
		videos = append(videos, v)
	}
	return videos, nil
}

// MediaInfo converts a probe into ledger media info, falling back to the
// walked size when the container did not report one.
func MediaInfo(probe transcode.ProbeResult, walkedSize int64) ledger.MediaInfo {
	size := probe.SizeBytes
	if size <= 0 {
		size = walkedSize
	}
	return ledger.MediaInfo{
		SizeBytes:   size,
		Codec:       strings.ToLower(probe.Codec),
		Width:       probe.Width,
		Height:      probe.Height,
		Bitrate:     probe.Bitrate,
		DurationSec: probe.DurationSec,
	}
}

// RecordState applies fields to v. Skip outcomes rename the file with the
// _skip marker so later walks ignore it; every other status lives only in the
// event log and, for compressed files, the embedded tag.
func (l *Ledger) RecordState(_ context.Context, v *ledger.Video, status ledger.Status, fields ...ledger.Field) error {
	if v == nil {
		return errors.New("record state: nil video")
	}
	if _, ok := ledger.ParseStatus(string(status)); !ok {
		return fmt.Errorf("record state: unknown status %q", status)
	}
	v.Apply(status, fields...)
	v.UpdatedAt = l.now().UTC()

	if !l.setsAside(v, status) {
		return nil
	}
	target := fileutil.UniquePath(library.SkipPath(v.Path))
	if err := os.Rename(v.Path, target); err != nil {
		return fmt.Errorf("mark %s skipped: %w", v.Path, err)
	}
	l.logger.Debug("file set aside",
		logging.Video(v.Path),
		logging.String("skip_path", target),
		logging.String("status", string(status)),
	)
	ledger.WithPath(target)(v)
	return nil
}

func (l *Ledger) setsAside(v *ledger.Video, status ledger.Status) bool {
	if status != ledger.StatusSkipped && status != ledger.StatusSkippedNoSavings {
		return false
	}
	if v.Action == strategy.ActionSkipTagged {
		return false
	}
	return !library.HasSkipMarker(filepath.Base(v.Path))
}

type eventRecord struct {
	Timestamp string `json:"timestamp"`
	Machine   string `json:"machine"`
	VideoPath string `json:"video_path,omitempty"`
	Event     string `json:"event"`
	Details   string `json:"details,omitempty"`
}

// AppendEvent writes one JSON line to the per-host event log.
func (l *Ledger) AppendEvent(_ context.Context, v *ledger.Video, machine, event, details string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("append event: event name is required")
	}
	rec := eventRecord{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Machine:   machine,
		Event:     event,
		Details:   details,
	}
	if v != nil {
		rec.VideoPath = v.Path
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	l.eventsMu.Lock()
	defer l.eventsMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.eventLogPath), 0o755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}
	f, err := os.OpenFile(l.eventLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	return f.Close()
}

// ReadEvents returns every event in the log, oldest first. A missing log is empty.
func (l *Ledger) ReadEvents() ([]ledger.Event, error) {
	data, err := os.ReadFile(l.eventLogPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	var events []ledger.Event
	for i, raw := range strings.Split(string(data), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var rec eventRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("event log line %d: %w", i+1, err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, rec.Timestamp)
		events = append(events, ledger.Event{
			VideoPath: rec.VideoPath,
			Machine:   rec.Machine,
			Event:     rec.Event,
			Details:   rec.Details,
			Timestamp: ts,
		})
	}
	return events, nil
}
