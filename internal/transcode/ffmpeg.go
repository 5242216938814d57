package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"vidshrink/internal/config"
	"vidshrink/internal/logging"
	"vidshrink/internal/media/ffprobe"
	"vidshrink/internal/services"
	"vidshrink/internal/strategy"
)

var commandContext = exec.CommandContext

const stderrTailBytes = 1000

// gpuDecoders maps source codecs to the NVDEC decoder used when hardware decode is on.
var gpuDecoders = map[string]string{
	"h264": "h264_cuvid",
	"hevc": "hevc_cuvid",
	"av1":  "av1_cuvid",
}

// FFmpeg drives the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegBinary  string
	ffprobeBinary string
	policy        strategy.Policy
	audioBitrate  string
	frameRate     int
	preset        string
	hwDecode      bool
	probeTimeout  time.Duration
	encodeTimeout time.Duration
	remuxTimeout  time.Duration
	logger        *slog.Logger
}

// NewFFmpeg builds an engine from the transcode config section.
func NewFFmpeg(cfg *config.Config, policy strategy.Policy, logger *slog.Logger) *FFmpeg {
	tc := cfg.Transcode
	return &FFmpeg{
		ffmpegBinary:  firstNonEmpty(tc.FFmpegBinary, "ffmpeg"),
		ffprobeBinary: firstNonEmpty(tc.FFprobeBinary, "ffprobe"),
		policy:        policy,
		audioBitrate:  firstNonEmpty(tc.AudioBitrate, "128k"),
		frameRate:     tc.FrameRate,
		preset:        firstNonEmpty(tc.Preset, "p4"),
		hwDecode:      tc.HardwareDecode,
		probeTimeout:  cfg.ProbeTimeout(),
		encodeTimeout: cfg.EncodeTimeout(),
		remuxTimeout:  cfg.RemuxTimeout(),
		logger:        logging.NewComponentLogger(logger, "ffmpeg"),
	}
}

// Probe inspects path and returns the first video stream's shape.
func (f *FFmpeg) Probe(ctx context.Context, path string) (ProbeResult, error) {
	probeCtx, cancel := withTimeout(ctx, f.probeTimeout)
	defer cancel()

	result, err := ffprobe.Inspect(probeCtx, f.ffprobeBinary, path)
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return ProbeResult{}, services.Wrap(services.ErrTimeout, "probe", "ffprobe",
				fmt.Sprintf("timed out after %s", f.probeTimeout), err)
		}
		return ProbeResult{}, services.Wrap(services.ErrExternalTool, "probe", "ffprobe", "", err)
	}
	stream, ok := result.VideoStream()
	if !ok {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "probe", "ffprobe", "no video stream in "+path, nil)
	}

	size := result.SizeBytes()
	if size == 0 {
		if info, statErr := os.Stat(path); statErr == nil {
			size = info.Size()
		}
	}
	return ProbeResult{
		Codec:       strings.ToLower(firstNonEmpty(stream.CodecName, "unknown")),
		Width:       stream.Width,
		Height:      stream.Height,
		Bitrate:     result.VideoBitRate(),
		DurationSec: result.DurationSeconds(),
		SizeBytes:   size,
		Comment:     result.Comment(),
	}, nil
}

// EncodeArgs builds the ffmpeg argv (without the binary) for an encode.
func (f *FFmpeg) EncodeArgs(input, output string, req EncodeRequest) []string {
	args := []string{"-y", "-hide_banner", "-nostats"}
	if f.hwDecode {
		if decoder, ok := gpuDecoders[strings.ToLower(req.SourceCodec)]; ok {
			args = append(args, "-c:v", decoder)
		}
	}
	args = append(args, "-i", input)
	args = append(args, "-c:v", f.policy.VideoEncoder, "-cq", strconv.Itoa(req.Quality), "-preset", f.preset)
	if f.frameRate > 0 {
		args = append(args, "-r", strconv.Itoa(f.frameRate))
	}
	if filter := strings.TrimSpace(req.ScaleFilter); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args, "-c:a", "aac", "-b:a", f.audioBitrate)
	args = append(args, "-metadata", "comment="+f.policy.Tag)
	args = append(args, "-movflags", "+faststart")
	args = append(args, output)
	return args
}

// RemuxArgs builds the ffmpeg argv for a stream copy into the target container.
func (f *FFmpeg) RemuxArgs(input, output string) []string {
	return []string{
		"-y", "-hide_banner", "-nostats",
		"-i", input,
		"-c", "copy",
		"-metadata", "comment=" + f.policy.Tag,
		"-movflags", "+faststart",
		output,
	}
}

// Encode transcodes path into a hidden temp artifact beside it.
func (f *FFmpeg) Encode(ctx context.Context, path string, req EncodeRequest) (Artifact, error) {
	if req.Quality <= 0 {
		return Artifact{}, services.Wrap(services.ErrValidation, "encode", "ffmpeg", "target quality not set", nil)
	}
	temp := TempPath(path, f.policy.TargetContainer)
	return f.produce(ctx, "encode", path, temp, f.encodeTimeout, f.EncodeArgs(path, temp, req))
}

// Remux stream-copies path into the target container with the idempotency tag.
func (f *FFmpeg) Remux(ctx context.Context, path string) (Artifact, error) {
	temp := TempPath(path, f.policy.TargetContainer)
	return f.produce(ctx, "remux", path, temp, f.remuxTimeout, f.RemuxArgs(path, temp))
}

// Tag stream-copies input to output, stamping the idempotency tag.
func (f *FFmpeg) Tag(ctx context.Context, input, output string) error {
	return f.run(ctx, "tag", output, f.remuxTimeout, f.RemuxArgs(input, output))
}

func (f *FFmpeg) produce(ctx context.Context, stage, source, temp string, timeout time.Duration, args []string) (Artifact, error) {
	start := time.Now()
	if err := f.run(ctx, stage, temp, timeout, args); err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(temp)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrExternalTool, stage, "ffmpeg", "output file not created", err)
	}
	return Artifact{
		SourcePath: source,
		TempPath:   temp,
		FinalPath:  FinalPath(source, f.policy.TargetContainer),
		OutputSize: info.Size(),
		Elapsed:    time.Since(start),
	}, nil
}

func (f *FFmpeg) run(ctx context.Context, stage, output string, timeout time.Duration, args []string) error {
	runCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	f.logger.Debug("ffmpeg starting",
		logging.String(logging.FieldStage, stage),
		logging.String("command", f.ffmpegBinary+" "+strings.Join(args, " ")),
		logging.String("temp_path", output),
	)

	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd := commandContext(runCtx, f.ffmpegBinary, args...) //nolint:gosec
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	_ = os.Remove(output)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return services.Wrap(services.ErrTimeout, stage, "ffmpeg", fmt.Sprintf("timed out after %s", timeout), runCtx.Err())
	case ctx.Err() != nil:
		return services.Wrap(services.ErrTransient, stage, "ffmpeg", "cancelled", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return services.Wrap(services.ErrExternalTool, stage, "ffmpeg",
			fmt.Sprintf("exit %d: %s", exitErr.ExitCode(), stderr.String()), nil)
	}
	return services.Wrap(services.ErrExternalTool, stage, "ffmpeg", "", err)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ Backend = (*FFmpeg)(nil)
