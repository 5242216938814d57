package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	draptolib "github.com/five82/drapto"

	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

// Drapto encodes with the drapto library, which chooses its own quality and
// scaling. The result is stream-copied into the target container so it
// carries the idempotency tag like any ffmpeg artifact.
type Drapto struct {
	ff     *FFmpeg
	logger *slog.Logger
	encode func(ctx context.Context, input, outputDir string) (string, error)
}

// NewDrapto builds a drapto-backed engine. Probe and Remux use ff.
func NewDrapto(ff *FFmpeg, logger *slog.Logger) *Drapto {
	d := &Drapto{ff: ff, logger: logging.NewComponentLogger(logger, "drapto")}
	d.encode = d.libraryEncode
	return d
}

// Probe delegates to ffprobe.
func (d *Drapto) Probe(ctx context.Context, path string) (ProbeResult, error) {
	return d.ff.Probe(ctx, path)
}

// Remux delegates to ffmpeg.
func (d *Drapto) Remux(ctx context.Context, path string) (Artifact, error) {
	return d.ff.Remux(ctx, path)
}

// Encode runs drapto into a hidden work directory and tags the result into the temp artifact.
func (d *Drapto) Encode(ctx context.Context, path string, req EncodeRequest) (Artifact, error) {
	start := time.Now()
	if filter := strings.TrimSpace(req.ScaleFilter); filter != "" {
		logging.WarnWithContext(d.logger, "drapto ignores the requested downscale", "drapto_scale_ignored",
			logging.Video(path),
			logging.String("scale_filter", filter),
			logging.String(logging.FieldImpact, "output keeps the source resolution"),
			logging.String(logging.FieldErrorHint, "use the ffmpeg engine to apply 4K downscale decisions"),
		)
	}
	workDir := workDirFor(path)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, "encode", "drapto", "create work dir", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	encodeCtx, cancel := withTimeout(ctx, d.ff.encodeTimeout)
	defer cancel()

	d.logger.Debug("drapto encode starting",
		logging.Video(path),
		logging.String("source_codec", req.SourceCodec),
	)
	encoded, err := d.encode(encodeCtx, path, workDir)
	if err != nil {
		if errors.Is(encodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Artifact{}, services.Wrap(services.ErrTimeout, "encode", "drapto",
				fmt.Sprintf("timed out after %s", d.ff.encodeTimeout), err)
		}
		return Artifact{}, services.Wrap(services.ErrExternalTool, "encode", "drapto", "", err)
	}

	temp := TempPath(path, d.ff.policy.TargetContainer)
	if err := d.ff.Tag(ctx, encoded, temp); err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(temp)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrExternalTool, "encode", "drapto", "output file not created", err)
	}
	return Artifact{
		SourcePath: path,
		TempPath:   temp,
		FinalPath:  FinalPath(path, d.ff.policy.TargetContainer),
		OutputSize: info.Size(),
		Elapsed:    time.Since(start),
	}, nil
}

func (d *Drapto) libraryEncode(ctx context.Context, input, outputDir string) (string, error) {
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", err
	}
	if _, err := encoder.EncodeWithReporter(ctx, input, outputDir, &logReporter{logger: d.logger}); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(outputDir, stem+".mkv"), nil
}

// logReporter forwards the drapto events worth keeping to the logger.
type logReporter struct {
	logger *slog.Logger
}

func (r *logReporter) Hardware(s draptolib.HardwareSummary) {
	r.logger.Debug("drapto hardware", logging.String("host", s.Hostname))
}

func (r *logReporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Debug("drapto initialized",
		logging.String("input", s.InputFile),
		logging.Any("resolution", s.Resolution),
		logging.Any("duration", s.Duration),
	)
}

func (r *logReporter) StageProgress(s draptolib.StageProgress) {
	r.logger.Debug("drapto stage", logging.String(logging.FieldStage, s.Stage), logging.String("message", s.Message))
}

func (r *logReporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop", logging.Any("crop", s.Crop), logging.Bool("required", s.Required))
}

func (r *logReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Debug("drapto encoding config",
		logging.Any("encoder", s.Encoder),
		logging.Any("preset", s.Preset),
		logging.Any("quality", s.Quality),
	)
}

func (r *logReporter) EncodingStarted(totalFrames uint64) {
	r.logger.Debug("drapto encoding started", logging.Any("total_frames", totalFrames))
}

func (r *logReporter) EncodingProgress(draptolib.ProgressSnapshot) {}

func (r *logReporter) ValidationComplete(s draptolib.ValidationSummary) {
	r.logger.Debug("drapto validation", logging.Bool("passed", s.Passed))
}

func (r *logReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Debug("drapto encoding complete",
		logging.Args(logging.Sizes(int64(s.OriginalSize), int64(s.EncodedSize))...)...)
}

func (r *logReporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "drapto_warning",
		logging.String("message", message),
		logging.String(logging.FieldImpact, "encode continues"),
	)
}

func (r *logReporter) Error(e draptolib.ReporterError) {
	r.logger.Debug("drapto error", logging.String("title", e.Title), logging.String("message", e.Message))
}

func (r *logReporter) OperationComplete(message string) {
	r.logger.Debug("drapto operation complete", logging.String("message", message))
}

func (r *logReporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *logReporter) FileProgress(draptolib.FileProgressContext) {}

func (r *logReporter) BatchComplete(draptolib.BatchSummary) {}

var (
	_ Backend            = (*Drapto)(nil)
	_ draptolib.Reporter = (*logReporter)(nil)
)
