package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"vidshrink/internal/ledger"
	"vidshrink/internal/ledger/fsledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
	"vidshrink/internal/strategy"
)

// RemediationStats summarises a Remediate pass.
type RemediationStats struct {
	RunID      string
	Candidates int
	Restored   int
	Planned    int
	NoBackup   int
	Busy       int
	Failed     int
}

// Remediate restores every needs_remediation video from its backup, re-probes
// the original, and re-enters it as pending or skipped under the current policy.
func (m *Manager) Remediate(ctx context.Context, dryRun bool) (RemediationStats, error) {
	stats := RemediationStats{RunID: uuid.NewString()}
	store, err := m.store()
	if err != nil {
		return stats, err
	}
	ctx = services.WithRunID(ctx, stats.RunID)
	videos, err := store.ListByStatus(ctx, ledger.StatusNeedsRemediation)
	if err != nil {
		return stats, err
	}
	stats.Candidates = len(videos)

	for _, v := range videos {
		if ctx.Err() != nil {
			break
		}
		logger := m.videoLogger(ctx, v)
		backupPath := v.BackupPath
		if backupPath == "" {
			if backupPath, err = m.backup.PathFor(v.Path); err != nil {
				return stats, err
			}
		}
		if !m.backup.Exists(backupPath) {
			stats.NoBackup++
			logging.WarnWithContext(logger, "backup missing; cannot remediate", "remediation_skip",
				logging.String("backup_path", backupPath),
				logging.String(logging.FieldErrorHint, "locate the original manually or mark the video done"),
				logging.String(logging.FieldImpact, "video stays needs_remediation"),
			)
			continue
		}
		if dryRun {
			stats.Planned++
			logger.Info("would restore original",
				logging.String(logging.FieldEventType, "remediation_planned"),
				logging.String("backup_path", backupPath),
			)
			continue
		}

		ok, err := m.claims.Claim(ctx, v.Path)
		if err != nil {
			return stats, fmt.Errorf("claim %s: %w", v.Path, err)
		}
		if !ok {
			stats.Busy++
			continue
		}
		err = m.remediateOne(ctx, v, backupPath)
		m.release(ctx, logger, v.Path)
		if err != nil {
			stats.Failed++
			m.appendEvent(ctx, logger, v, "remediation_failed", err.Error())
			logging.ErrorWithContext(logger, "remediation failed", "remediation_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
			)
			continue
		}
		stats.Restored++
	}
	return stats, nil
}

func (m *Manager) remediateOne(ctx context.Context, v *ledger.Video, backupPath string) error {
	logger := m.videoLogger(ctx, v)
	if v.OutputPath != "" && filepath.Clean(v.OutputPath) != filepath.Clean(v.Path) {
		if err := os.Remove(v.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrBackup, "remediate", "remove artifact", v.OutputPath, err)
		}
	}
	if err := m.backup.Restore(ctx, backupPath, v.Path); err != nil {
		return err
	}
	if err := m.ledger.RecordState(ctx, v, ledger.StatusRestored, ledger.ClearResults()); err != nil {
		return fmt.Errorf("record restored: %w", err)
	}

	status := ledger.StatusPending
	fields := []ledger.Field{ledger.ClearResults()}
	probe, err := m.backend.Probe(ctx, v.Path)
	if err != nil {
		logging.WarnWithContext(logger, "re-probe after restore failed; keeping previous decision", "remediation_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "video re-enters pending with its old decision"),
		)
	} else {
		info := fsledger.MediaInfo(probe, v.SizeBytes)
		decision := strategy.Decide(m.policy, strategy.Input{
			Codec:         probe.Codec,
			Bitrate:       probe.Bitrate,
			Width:         probe.Width,
			Height:        probe.Height,
			AlreadyTagged: m.policy.IsTagged(probe.Comment),
			ContainerExt:  filepath.Ext(v.Path),
		})
		if !decision.Action.IsWork() {
			status = ledger.StatusSkipped
		}
		fields = append(fields, ledger.WithProbe(info), ledger.WithDecision(decision))
	}
	if err := m.ledger.RecordState(ctx, v, status, fields...); err != nil {
		return fmt.Errorf("record %s: %w", status, err)
	}
	m.appendEvent(ctx, logger, v, "remediated", fmt.Sprintf("%s (was %s)", v.Action, ledger.StatusNeedsRemediation))
	logger.Info("original restored",
		logging.String(logging.FieldEventType, "remediated"),
		logging.String("status", string(status)),
		logging.String("action", string(v.Action)),
		logging.String("backup_path", backupPath),
	)
	return nil
}

// AuditClass grades a committed artifact against its original.
type AuditClass string

const (
	AuditGood     AuditClass = "good"
	AuditMarginal AuditClass = "marginal"
	AuditBigger   AuditClass = "bigger"
	AuditMissing  AuditClass = "missing"
)

// ClassifyArtifact grades an artifact by size against its original.
func ClassifyArtifact(originalSize, compressedSize int64, minSavingsPct float64) AuditClass {
	if compressedSize >= originalSize {
		return AuditBigger
	}
	if SavingsPercent(originalSize, compressedSize) < minSavingsPct {
		return AuditMarginal
	}
	return AuditGood
}

// AuditEntry is one graded video.
type AuditEntry struct {
	Video          *ledger.Video
	Class          AuditClass
	OriginalSize   int64
	CompressedSize int64
	SavingsPct     float64
}

// AuditReport summarises an Audit pass.
type AuditReport struct {
	Entries []AuditEntry
	Counts  map[AuditClass]int
}

// Audit grades every compressed video. Bigger and marginal artifacts move to
// needs_remediation, good ones to done, and missing ones to failed. With
// dryRun nothing is written.
func (m *Manager) Audit(ctx context.Context, dryRun bool) (AuditReport, error) {
	report := AuditReport{Counts: make(map[AuditClass]int)}
	store, err := m.store()
	if err != nil {
		return report, err
	}
	videos, err := store.ListByStatus(ctx, ledger.StatusCompressed)
	if err != nil {
		return report, err
	}
	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := m.grade(v)
		report.Entries = append(report.Entries, entry)
		report.Counts[entry.Class]++
		if dryRun {
			continue
		}

		var (
			status ledger.Status
			fields []ledger.Field
		)
		switch entry.Class {
		case AuditMissing:
			status = ledger.StatusFailed
			fields = append(fields, ledger.WithError("compressed output missing at audit"))
		case AuditBigger, AuditMarginal:
			status = ledger.StatusNeedsRemediation
		default:
			status = ledger.StatusDone
		}
		if err := store.RecordState(ctx, v, status, fields...); err != nil {
			return report, err
		}
		m.appendEvent(ctx, m.logger, v, "audit", fmt.Sprintf("%s %.1f%%", entry.Class, entry.SavingsPct))
	}
	m.logger.Info("audit complete",
		logging.String(logging.FieldEventType, "audit_complete"),
		logging.Int("good", report.Counts[AuditGood]),
		logging.Int("marginal", report.Counts[AuditMarginal]),
		logging.Int("bigger", report.Counts[AuditBigger]),
		logging.Int("missing", report.Counts[AuditMissing]),
		logging.Bool("dry_run", dryRun),
	)
	return report, nil
}

func (m *Manager) grade(v *ledger.Video) AuditEntry {
	entry := AuditEntry{Video: v, OriginalSize: v.SizeBytes}
	compressed := v.OutputPath
	if compressed == "" {
		compressed = v.Path
	}
	info, err := os.Stat(compressed)
	if err != nil {
		entry.Class = AuditMissing
		return entry
	}
	entry.CompressedSize = info.Size()
	if v.BackupPath != "" {
		if bi, err := os.Stat(v.BackupPath); err == nil {
			entry.OriginalSize = bi.Size()
		}
	}
	entry.SavingsPct = SavingsPercent(entry.OriginalSize, entry.CompressedSize)
	entry.Class = ClassifyArtifact(entry.OriginalSize, entry.CompressedSize, m.cfg.Workflow.MinSavingsPercent)
	return entry
}
