package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrBackup        = errors.New("backup failure")
	ErrFinalize      = errors.New("finalize failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// NeedsRemediation reports whether the failure left the library in a state an
// operator must repair by hand (original moved to backup, artifact not in place).
func NeedsRemediation(err error) bool {
	return errors.Is(err, ErrFinalize)
}

// Hint returns a short operator-facing next step for a classified error.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "raise transcode timeouts or inspect the source file"
	case errors.Is(err, ErrExternalTool):
		return "inspect the ffmpeg diagnostic in the ledger error message"
	case errors.Is(err, ErrBackup):
		return "check free space and permissions on the backup volume"
	case errors.Is(err, ErrFinalize):
		return "restore the original from the recorded backup path"
	case errors.Is(err, ErrConfiguration):
		return "fix the configuration file and rerun"
	case errors.Is(err, ErrNotFound):
		return "the file moved or was deleted since the scan; rescan the library"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "worker failure"
	}
	return strings.Join(parts, ": ")
}
