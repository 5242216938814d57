package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"vidshrink/internal/fileutil"
	"vidshrink/internal/ledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
	"vidshrink/internal/strategy"
	"vidshrink/internal/transcode"
)

// Process runs one video through claim, transcode, size gate and commit.
//
// The returned error is reserved for infrastructure failures (claim store or
// ledger unreachable) that should stop the run. Per-file failures are
// reported as OutcomeFailed with Result.Err set.
//
// Once the claim is held the transcode and commit run to completion even if
// ctx is cancelled, so an interrupted run never leaves a half-committed file.
func (m *Manager) Process(ctx context.Context, v *ledger.Video) (Result, error) {
	res := Result{Video: v, InputSize: v.SizeBytes}
	logger := m.videoLogger(ctx, v)

	if !v.Action.IsWork() {
		return m.recordSkip(ctx, logger, v)
	}

	ok, err := m.claims.Claim(ctx, v.Path)
	if err != nil {
		return res, fmt.Errorf("claim %s: %w", v.Path, err)
	}
	if !ok {
		logger.Debug("claimed elsewhere", logging.String(logging.FieldEventType, "claim_lost"))
		res.Outcome = OutcomeAlreadyClaimed
		return res, nil
	}

	work := context.WithoutCancel(ctx)
	if reason, ok := m.revalidate(work, v); !ok {
		m.release(work, logger, v.Path)
		logger.Info("video no longer needs work",
			logging.String(logging.FieldEventType, "claim_aborted"),
			logging.String("decision_reason", reason),
		)
		res.Outcome = OutcomeAborted
		return res, nil
	}
	if fi, err := os.Stat(v.Path); err == nil && fi.Size() > 0 {
		res.InputSize = fi.Size()
	}

	if err := m.ledger.RecordState(work, v, ledger.StatusClaimed, ledger.WithClaim(m.machine, m.now())); err != nil {
		m.release(work, logger, v.Path)
		return res, fmt.Errorf("record claimed: %w", err)
	}
	m.appendEvent(work, logger, v, "claimed", "")

	if err := m.ledger.RecordState(work, v, ledger.StatusEncoding); err != nil {
		m.release(work, logger, v.Path)
		return res, fmt.Errorf("record encoding: %w", err)
	}
	m.appendEvent(work, logger, v, "encoding_started", string(v.Action))
	logger.Info("transcode started",
		logging.String(logging.FieldEventType, "encoding_started"),
		logging.String(logging.FieldStage, string(v.Action)),
		logging.String("action", string(v.Action)),
		logging.Int("target_quality", v.TargetQuality),
		logging.Int64("input_bytes", res.InputSize),
		logging.String("decision_reason", v.DecisionReason),
	)

	artifact, err := m.transcode(work, v)
	if err != nil {
		return m.fail(work, logger, res, err)
	}
	res.OutputSize = artifact.OutputSize
	res.SavingsPct = SavingsPercent(res.InputSize, artifact.OutputSize)
	res.Elapsed = artifact.Elapsed

	if v.SizeGateRequired && !m.passesSizeGate(res.InputSize, artifact.OutputSize) {
		return m.rejectNoSavings(work, logger, res, artifact)
	}

	backupPath, err := m.backup.Move(work, v.Path)
	if err != nil {
		artifact.Discard()
		return m.fail(work, logger, res, err)
	}
	res.BackupPath = backupPath

	if _, err := fileutil.MoveFile(artifact.TempPath, artifact.FinalPath); err != nil {
		artifact.Discard()
		wrapped := services.Wrap(services.ErrFinalize, "commit", "rename artifact",
			fmt.Sprintf("original is at %s", backupPath), err)
		return m.fail(work, logger, res, wrapped, ledger.WithBackup(backupPath))
	}
	res.OutputPath = artifact.FinalPath

	finished := m.now()
	if err := m.ledger.RecordState(work, v, ledger.StatusCompressed,
		ledger.WithOutput(artifact.FinalPath, artifact.OutputSize, res.SavingsPct),
		ledger.WithBackup(backupPath),
		ledger.WithFinished(finished),
		ledger.WithError(""),
	); err != nil {
		m.release(work, logger, v.Path)
		return res, fmt.Errorf("record compressed: %w", err)
	}
	m.appendEvent(work, logger, v, "compressed",
		fmt.Sprintf("%.1f%% saved in %ds", res.SavingsPct, int(artifact.Elapsed.Round(time.Second)/time.Second)))
	m.release(work, logger, v.Path)

	res.Outcome = OutcomeCompressed
	if v.Action == strategy.ActionRemux {
		res.Outcome = OutcomeRemuxed
	}
	attrs := append([]logging.Attr{
		logging.String(logging.FieldEventType, "compressed"),
		logging.String("action", string(v.Action)),
		logging.String("final_path", artifact.FinalPath),
		logging.String("backup_path", backupPath),
		logging.Duration("elapsed", artifact.Elapsed),
	}, logging.Sizes(res.InputSize, res.OutputSize)...)
	logger.Info("artifact committed", logging.Args(attrs...)...)
	return res, nil
}

// revalidate confirms the file still needs work after the claim was won.
func (m *Manager) revalidate(ctx context.Context, v *ledger.Video) (string, bool) {
	if _, err := os.Stat(v.Path); err != nil {
		return "file no longer exists", false
	}
	if !m.ledger.RequiresRevalidation() {
		return "", true
	}
	probe, err := m.backend.Probe(ctx, v.Path)
	if err != nil {
		return fmt.Sprintf("re-probe failed: %v", err), false
	}
	if m.policy.IsTagged(probe.Comment) {
		return "already carries a compression tag", false
	}
	return "", true
}

func (m *Manager) transcode(ctx context.Context, v *ledger.Video) (transcode.Artifact, error) {
	ctx = services.WithStage(ctx, string(v.Action))
	switch v.Action {
	case strategy.ActionRemux:
		return m.backend.Remux(ctx, v.Path)
	case strategy.ActionEncode:
		req := transcode.EncodeRequest{SourceCodec: v.Codec, Quality: v.TargetQuality}
		if v.Downscale {
			req.ScaleFilter = m.policy.ScaleFilter(v.Width, v.Height)
		}
		return m.backend.Encode(ctx, v.Path, req)
	default:
		return transcode.Artifact{}, services.Wrap(services.ErrValidation, "transcode", "dispatch",
			fmt.Sprintf("action %q is not work", v.Action), nil)
	}
}

// passesSizeGate reports whether out is at least MinSavingsPercent smaller than in.
func (m *Manager) passesSizeGate(in, out int64) bool {
	if in <= 0 {
		return true
	}
	return float64(out)*100 < (100-m.cfg.Workflow.MinSavingsPercent)*float64(in)
}

func (m *Manager) rejectNoSavings(ctx context.Context, logger *slog.Logger, res Result, artifact transcode.Artifact) (Result, error) {
	artifact.Discard()
	v := res.Video
	if err := m.ledger.RecordState(ctx, v, ledger.StatusSkippedNoSavings,
		ledger.WithOutput("", artifact.OutputSize, res.SavingsPct),
		ledger.WithFinished(m.now()),
	); err != nil {
		m.release(ctx, logger, res.Video.Path)
		return res, fmt.Errorf("record no savings: %w", err)
	}
	m.appendEvent(ctx, logger, v, "skipped_no_savings", fmt.Sprintf("%.1f%%", res.SavingsPct))
	if m.cfg.Workflow.ReleaseClaimOnNoSavings {
		m.release(ctx, logger, artifactSource(artifact, v))
	}
	attrs := append([]logging.Attr{
		logging.String(logging.FieldEventType, "skipped_no_savings"),
		logging.Bool("claim_released", m.cfg.Workflow.ReleaseClaimOnNoSavings),
	}, logging.Sizes(res.InputSize, res.OutputSize)...)
	logger.Info("size gate rejected artifact", logging.Args(attrs...)...)
	res.Outcome = OutcomeNoSavings
	return res, nil
}

// artifactSource is the path the claim was taken on; the filesystem ledger
// may have renamed the video since.
func artifactSource(a transcode.Artifact, v *ledger.Video) string {
	if a.SourcePath != "" {
		return a.SourcePath
	}
	return v.Path
}

func (m *Manager) fail(ctx context.Context, logger *slog.Logger, res Result, cause error, extra ...ledger.Field) (Result, error) {
	v := res.Video
	m.release(ctx, logger, v.Path)
	res.Outcome = OutcomeFailed
	res.Err = cause

	message := cause.Error()
	fields := append([]ledger.Field{ledger.WithError(message), ledger.WithFinished(m.now())}, extra...)
	if err := m.ledger.RecordState(ctx, v, ledger.StatusFailed, fields...); err != nil {
		return res, fmt.Errorf("record failed: %w", errors.Join(err, cause))
	}
	m.appendEvent(ctx, logger, v, "failed", message)

	attrs := []logging.Attr{
		logging.String("action", string(v.Action)),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.Hint(cause)),
		logging.String(logging.FieldImpact, "video marked failed; run continues"),
	}
	if services.NeedsRemediation(cause) {
		attrs = append(attrs, logging.Alert("manual_remediation"))
	}
	logging.ErrorWithContext(logger, "video failed", "video_failed", attrs...)
	return res, nil
}

func (m *Manager) recordSkip(ctx context.Context, logger *slog.Logger, v *ledger.Video) (Result, error) {
	res := Result{Video: v, InputSize: v.SizeBytes, Outcome: OutcomeSkipped}
	if err := m.ledger.RecordState(ctx, v, ledger.StatusSkipped); err != nil {
		return res, fmt.Errorf("record skipped: %w", err)
	}
	m.appendEvent(ctx, logger, v, "skipped", v.DecisionReason)
	logger.Info("video skipped", logging.Args(logging.DecisionAttrs("strategy", string(v.Action), v.DecisionReason)...)...)
	return res, nil
}
