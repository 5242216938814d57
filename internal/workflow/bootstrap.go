package workflow

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"vidshrink/internal/ledger"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
	"vidshrink/internal/strategy"
)

// InventoryEntry is one record of a prior library inventory.
type InventoryEntry struct {
	Path     string  `json:"path"`
	Codec    string  `json:"codec"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Bitrate  int64   `json:"bitrate"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
}

// AuditRecord is one row of a prior audit export.
type AuditRecord struct {
	CompressedPath string
	Class          AuditClass
	BackupPath     string
}

// BootstrapStats summarises a Bootstrap.
type BootstrapStats struct {
	Imported int
	Audited  int
	Statuses map[ledger.Status]int
}

// Bootstrap seeds the SQLite ledger from an inventory JSON file and an
// optional audit CSV. Audit classifications override the decided status for
// matching paths: good becomes done, bigger and marginal need remediation,
// missing is failed.
func (m *Manager) Bootstrap(ctx context.Context, inventoryPath, auditPath string) (BootstrapStats, error) {
	stats := BootstrapStats{Statuses: make(map[ledger.Status]int)}
	store, err := m.store()
	if err != nil {
		return stats, err
	}
	inventory, err := LoadInventory(inventoryPath)
	if err != nil {
		return stats, err
	}
	audits := map[string]AuditRecord{}
	if strings.TrimSpace(auditPath) != "" {
		if audits, err = LoadAudit(auditPath); err != nil {
			return stats, err
		}
	}

	for _, entry := range inventory {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if strings.TrimSpace(entry.Path) == "" {
			continue
		}
		codec := strings.ToLower(strings.TrimSpace(entry.Codec))
		if codec == "" {
			codec = "unknown"
		}
		info := ledger.MediaInfo{
			SizeBytes:   entry.Size,
			Codec:       codec,
			Width:       entry.Width,
			Height:      entry.Height,
			Bitrate:     entry.Bitrate,
			DurationSec: entry.Duration,
		}
		decision := strategy.Decide(m.policy, strategy.Input{
			Codec:        codec,
			Bitrate:      entry.Bitrate,
			Width:        entry.Width,
			Height:       entry.Height,
			ContainerExt: filepath.Ext(entry.Path),
		})
		v := ledger.NewVideo(entry.Path, info, decision)
		if err := store.Upsert(ctx, v); err != nil {
			return stats, err
		}
		stats.Imported++

		record, audited := audits[entry.Path]
		if !audited {
			stats.Statuses[v.Status]++
			continue
		}
		status, fields := auditedStatus(record)
		if err := store.RecordState(ctx, v, status, fields...); err != nil {
			return stats, err
		}
		stats.Audited++
		stats.Statuses[status]++
	}
	m.logger.Info("ledger bootstrapped",
		logging.String(logging.FieldEventType, "import_complete"),
		logging.Int("imported", stats.Imported),
		logging.Int("audited", stats.Audited),
	)
	return stats, nil
}

func auditedStatus(record AuditRecord) (ledger.Status, []ledger.Field) {
	switch record.Class {
	case AuditGood:
		return ledger.StatusDone, backupField(record)
	case AuditBigger, AuditMarginal:
		return ledger.StatusNeedsRemediation, backupField(record)
	case AuditMissing:
		return ledger.StatusFailed, []ledger.Field{ledger.WithError("compressed output missing at audit")}
	default:
		return ledger.StatusSkipped, nil
	}
}

func backupField(record AuditRecord) []ledger.Field {
	if strings.TrimSpace(record.BackupPath) == "" {
		return nil
	}
	return []ledger.Field{ledger.WithBackup(record.BackupPath)}
}

// LoadInventory reads an inventory JSON array.
func LoadInventory(path string) ([]InventoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "import", "read inventory", path, err)
	}
	var entries []InventoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, services.Wrap(services.ErrValidation, "import", "decode inventory", path, err)
	}
	return entries, nil
}

// LoadAudit reads an audit CSV with compressed_path, classification and
// backup_path columns, keyed by compressed_path.
func LoadAudit(path string) (map[string]AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "import", "open audit", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "import", "read audit header", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"compressed_path", "classification"} {
		if _, ok := cols[required]; !ok {
			return nil, services.Wrap(services.ErrValidation, "import", "read audit header",
				fmt.Sprintf("missing column %q", required), nil)
		}
	}
	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	records := make(map[string]AuditRecord)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "import", "read audit row", path, err)
		}
		compressed := field(row, "compressed_path")
		if compressed == "" {
			continue
		}
		records[compressed] = AuditRecord{
			CompressedPath: compressed,
			Class:          AuditClass(strings.ToLower(field(row, "classification"))),
			BackupPath:     field(row, "backup_path"),
		}
	}
	return records, nil
}
