package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"vidshrink/internal/services"
	"vidshrink/internal/transcode"
)

// FakeBackend is an in-process transcode.Backend. Probes are served from a
// map keyed by path and artifacts are written as real temp files so commit
// logic runs against the filesystem.
type FakeBackend struct {
	mu sync.Mutex

	TargetExt string
	Probes    map[string]transcode.ProbeResult
	// OutputSize picks the artifact size for a source; the default halves it.
	OutputSize func(path string, sourceSize int64) int64
	EncodeErr  error
	RemuxErr   error
	// BeforeEncode runs after the worker has recorded encoding, before output exists.
	BeforeEncode func(path string)
	// AfterEncode runs once the temp artifact is written, before it is returned.
	AfterEncode func(artifact transcode.Artifact)

	Probed  []string
	Encoded []string
	Remuxed []string
	Seen    []transcode.EncodeRequest
}

// NewFakeBackend returns a backend producing .mp4 artifacts.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{TargetExt: ".mp4", Probes: make(map[string]transcode.ProbeResult)}
}

// SetProbe registers the probe result for path.
func (f *FakeBackend) SetProbe(path string, res transcode.ProbeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Probes[path] = res
}

// Probe returns the registered result, with size taken from disk when unset.
func (f *FakeBackend) Probe(_ context.Context, path string) (transcode.ProbeResult, error) {
	f.mu.Lock()
	f.Probed = append(f.Probed, path)
	res, ok := f.Probes[path]
	f.mu.Unlock()
	info, err := os.Stat(path)
	if err != nil {
		return transcode.ProbeResult{}, services.Wrap(services.ErrNotFound, "probe", "stat", path, err)
	}
	if !ok {
		return transcode.ProbeResult{}, services.Wrap(services.ErrValidation, "probe", "ffprobe", "no video stream", nil)
	}
	if res.SizeBytes == 0 {
		res.SizeBytes = info.Size()
	}
	return res, nil
}

// Encode writes a fake artifact.
func (f *FakeBackend) Encode(_ context.Context, path string, req transcode.EncodeRequest) (transcode.Artifact, error) {
	f.mu.Lock()
	f.Encoded = append(f.Encoded, path)
	f.Seen = append(f.Seen, req)
	hook := f.BeforeEncode
	err := f.EncodeErr
	f.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	if err != nil {
		return transcode.Artifact{}, err
	}
	return f.produce(path)
}

// Remux writes a fake artifact.
func (f *FakeBackend) Remux(_ context.Context, path string) (transcode.Artifact, error) {
	f.mu.Lock()
	f.Remuxed = append(f.Remuxed, path)
	err := f.RemuxErr
	f.mu.Unlock()
	if err != nil {
		return transcode.Artifact{}, err
	}
	return f.produce(path)
}

func (f *FakeBackend) produce(path string) (transcode.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return transcode.Artifact{}, fmt.Errorf("stat source: %w", err)
	}
	size := info.Size() / 2
	if f.OutputSize != nil {
		size = f.OutputSize(path, info.Size())
	}
	if size <= 0 {
		return transcode.Artifact{}, errors.New("fake backend: empty output")
	}
	temp := transcode.TempPath(path, f.TargetExt)
	if err := os.WriteFile(temp, make([]byte, size), 0o644); err != nil {
		return transcode.Artifact{}, err
	}
	artifact := transcode.Artifact{
		SourcePath: path,
		TempPath:   temp,
		FinalPath:  transcode.FinalPath(path, f.TargetExt),
		OutputSize: size,
		Elapsed:    1500 * time.Millisecond,
	}
	f.mu.Lock()
	hook := f.AfterEncode
	f.mu.Unlock()
	if hook != nil {
		hook(artifact)
	}
	return artifact, nil
}

var _ transcode.Backend = (*FakeBackend)(nil)
