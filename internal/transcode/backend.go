package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidshrink/internal/config"
	"vidshrink/internal/fileutil"
	"vidshrink/internal/strategy"
)

// ProbeResult is the subset of ffprobe output the worker needs.
type ProbeResult struct {
	Codec       string
	Width       int
	Height      int
	Bitrate     int64
	DurationSec float64
	SizeBytes   int64
	Comment     string
}

// EncodeRequest carries the decided encode parameters.
type EncodeRequest struct {
	SourceCodec string
	Quality     int
	ScaleFilter string
}

// Artifact is a finished temporary output awaiting commit.
type Artifact struct {
	SourcePath string
	TempPath   string
	FinalPath  string
	OutputSize int64
	Elapsed    time.Duration
}

// Discard removes the temporary output.
func (a Artifact) Discard() {
	if a.TempPath != "" {
		_ = os.Remove(a.TempPath)
	}
}

// Backend probes and transcodes media.
type Backend interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
	Encode(ctx context.Context, path string, req EncodeRequest) (Artifact, error)
	Remux(ctx context.Context, path string) (Artifact, error)
}

// New returns the engine selected by cfg.Transcode.Engine.
func New(cfg *config.Config, policy strategy.Policy, logger *slog.Logger) (Backend, error) {
	ff := NewFFmpeg(cfg, policy, logger)
	switch strings.ToLower(strings.TrimSpace(cfg.Transcode.Engine)) {
	case "", config.EngineFFmpeg:
		return ff, nil
	case config.EngineDrapto:
		return NewDrapto(ff, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcode engine %q", cfg.Transcode.Engine)
	}
}

// TempPath returns the hidden temporary artifact path for source. The full
// source name is kept so siblings differing only by extension never share one.
func TempPath(source, targetExt string) string {
	return filepath.Join(filepath.Dir(source), "."+filepath.Base(source)+".tmp"+targetExt)
}

// workDirFor returns the hidden scratch directory for engines that write
// intermediate files before the tagged artifact exists.
func workDirFor(source string) string {
	return filepath.Join(filepath.Dir(source), "."+filepath.Base(source)+".tmp.work")
}

// FinalPath returns where the artifact lands once committed. Sources already
// in the target container keep their path; others take the target extension
// and a numeric suffix when that name is taken by an unrelated file.
func FinalPath(source, targetExt string) string {
	dir := filepath.Dir(source)
	ext := filepath.Ext(source)
	stem := strings.TrimSuffix(filepath.Base(source), ext)
	stem = strings.Replace(stem, "_compressed", "", 1)
	final := filepath.Join(dir, stem+targetExt)
	if final == source {
		return final
	}
	return fileutil.UniquePath(final)
}
