package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"
	"golang.org/x/sys/unix"

	"vidshrink/internal/claim"
	"vidshrink/internal/config"
	"vidshrink/internal/deps"
	"vidshrink/internal/strategy"
)

var diskFree = func(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBackupSpace verifies the backup volume has at least minFree bytes
// available. A volume whose usage cannot be read passes with a note, matching
// the backup store, which only refuses moves on a confirmed shortfall.
func CheckBackupSpace(ctx context.Context, path string, minFree uint64) Result {
	const name = "Backup free space"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "backup directory not configured"}
	}
	free, err := diskFree(ctx, path)
	if err != nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("usage unavailable (%v)", err)}
	}
	if free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, need at least %s", humanize.IBytes(free), humanize.IBytes(minFree))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(free))}
}

// CheckClaimStore claims and releases a probe key to prove the shared
// coordination store accepts atomic creates from this machine.
func CheckClaimStore(ctx context.Context, store claim.Store, machine string) Result {
	const name = "Claim store"
	probe := fmt.Sprintf("/.vidshrink-preflight/%s/%d", machine, os.Getpid())
	ok, err := store.Claim(ctx, probe)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("claim failed (%v)", err)}
	}
	if !ok {
		return Result{Name: name, Detail: "probe key already held; another check may be running"}
	}
	if err := store.Release(ctx, probe); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("release failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "claim and release ok"}
}

// CheckSystemDeps evaluates the external binaries required by cfg. Both the
// run command and the check command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcode.FFmpegBinary,
			Description: "Required for encoding and remuxing",
			VersionArg:  "-version",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Transcode.FFprobeBinary,
			Description: "Required for media inspection",
			VersionArg:  "-version",
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

// FromStatus converts a dependency status into a preflight result. Missing
// optional binaries pass.
func FromStatus(status deps.Status) Result {
	if status.Available {
		detail := status.Path
		if status.Version != "" {
			detail += " (" + status.Version + ")"
		}
		return Result{Name: status.Name, Passed: true, Detail: detail}
	}
	detail := status.Detail
	if status.Description != "" {
		detail += "; " + strings.ToLower(status.Description[:1]) + status.Description[1:]
	}
	return Result{Name: status.Name, Passed: status.Optional, Detail: detail}
}

// RequiredEncoder returns the ffmpeg encoder the configured policy needs, or
// "" when the engine does not drive ffmpeg encoders directly.
func RequiredEncoder(cfg *config.Config) string {
	if cfg.Transcode.Engine != config.EngineFFmpeg {
		return ""
	}
	policy, err := strategy.Lookup(cfg.Strategy.Policy)
	if err != nil {
		return ""
	}
	return policy.VideoEncoder
}

// CheckEncoder verifies ffmpeg was built with encoder.
func CheckEncoder(ctx context.Context, ffmpegBinary, encoder string) Result {
	name := "Encoder " + encoder
	ok, err := deps.HasEncoder(ctx, ffmpegBinary, encoder)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !ok {
		return Result{Name: name, Detail: fmt.Sprintf("%s does not list %s", ffmpegBinary, encoder)}
	}
	return Result{Name: name, Passed: true, Detail: "available"}
}
