package ledger

import (
	"path/filepath"
	"strings"
	"time"

	"vidshrink/internal/strategy"
)

// Status represents the lifecycle of a video.
type Status string

const (
	StatusPending          Status = "pending"
	StatusSkipped          Status = "skipped"
	StatusClaimed          Status = "claimed"
	StatusEncoding         Status = "encoding"
	StatusCompressed       Status = "compressed"
	StatusSkippedNoSavings Status = "skipped_no_savings"
	StatusFailed           Status = "failed"
	StatusNeedsRemediation Status = "needs_remediation"
	StatusRestored         Status = "restored"
	StatusDone             Status = "done"
)

var allStatuses = []Status{
	StatusPending,
	StatusSkipped,
	StatusClaimed,
	StatusEncoding,
	StatusCompressed,
	StatusSkippedNoSavings,
	StatusFailed,
	StatusNeedsRemediation,
	StatusRestored,
	StatusDone,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompressed:       {},
	StatusSkippedNoSavings: {},
	StatusFailed:           {},
	StatusDone:             {},
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether the worker loop never moves a video out of this status.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// MediaInfo is the probed shape of a file.
type MediaInfo struct {
	SizeBytes   int64
	Codec       string
	Width       int
	Height      int
	Bitrate     int64
	DurationSec float64
}

// Video is one tracked file.
type Video struct {
	ID       int64
	Path     string
	Filename string
	MediaInfo

	Action           strategy.Action
	TargetQuality    int
	Downscale        bool
	SizeGateRequired bool
	PolicyVersion    string
	DecisionReason   string

	Status       Status
	ClaimedBy    string
	ClaimedAt    *time.Time
	FinishedAt   *time.Time
	OutputPath   string
	OutputSize   int64
	SavingsPct   float64
	BackupPath   string
	ErrorMessage string

	ScannedAt time.Time
	UpdatedAt time.Time
}

// NewVideo builds a pending video for path with the probed media info and decision applied.
func NewVideo(path string, info MediaInfo, decision strategy.Decision) *Video {
	v := &Video{
		Path:     path,
		Filename: filepath.Base(path),
		Status:   StatusPending,
	}
	WithProbe(info)(v)
	WithDecision(decision)(v)
	if !decision.Action.IsWork() {
		v.Status = StatusSkipped
	}
	return v
}

// Ext returns the lower-cased container extension including the dot.
func (v *Video) Ext() string {
	if v == nil {
		return ""
	}
	return strings.ToLower(filepath.Ext(v.Path))
}

// Decision reassembles the stored strategy decision.
func (v *Video) Decision() strategy.Decision {
	return strategy.Decision{
		Action:           v.Action,
		TargetQuality:    v.TargetQuality,
		Downscale:        v.Downscale,
		SizeGateRequired: v.SizeGateRequired,
		Reason:           v.DecisionReason,
		PolicyVersion:    v.PolicyVersion,
	}
}

// Event is one append-only processing_log entry.
type Event struct {
	ID        int64
	VideoID   int64
	VideoPath string
	Machine   string
	Event     string
	Details   string
	Timestamp time.Time
}

// Field mutates a video alongside a status transition.
type Field func(*Video)

// WithClaim records which machine claimed the video and when.
func WithClaim(machine string, at time.Time) Field {
	return func(v *Video) {
		v.ClaimedBy = machine
		t := at.UTC()
		v.ClaimedAt = &t
	}
}

// WithOutput records the produced artifact.
func WithOutput(path string, size int64, savingsPct float64) Field {
	return func(v *Video) {
		v.OutputPath = path
		v.OutputSize = size
		v.SavingsPct = savingsPct
	}
}

// WithBackup records where the original was moved.
func WithBackup(path string) Field {
	return func(v *Video) {
		v.BackupPath = path
	}
}

// WithError records a diagnostic.
func WithError(message string) Field {
	return func(v *Video) {
		v.ErrorMessage = strings.TrimSpace(message)
	}
}

// WithFinished stamps the completion time.
func WithFinished(at time.Time) Field {
	return func(v *Video) {
		t := at.UTC()
		v.FinishedAt = &t
	}
}

// WithDecision replaces the stored strategy decision.
func WithDecision(d strategy.Decision) Field {
	return func(v *Video) {
		v.Action = d.Action
		v.TargetQuality = d.TargetQuality
		v.Downscale = d.Downscale
		v.SizeGateRequired = d.SizeGateRequired
		v.DecisionReason = d.Reason
		v.PolicyVersion = d.PolicyVersion
	}
}

// WithProbe replaces the probed media info.
func WithProbe(info MediaInfo) Field {
	return func(v *Video) {
		v.MediaInfo = info
	}
}

// WithPath moves the record to a new path, used when the file is renamed.
func WithPath(path string) Field {
	return func(v *Video) {
		v.Path = path
		v.Filename = filepath.Base(path)
	}
}

// ClearResults drops claim, output, backup and error fields.
func ClearResults() Field {
	return func(v *Video) {
		v.ClaimedBy = ""
		v.ClaimedAt = nil
		v.FinishedAt = nil
		v.OutputPath = ""
		v.OutputSize = 0
		v.SavingsPct = 0
		v.BackupPath = ""
		v.ErrorMessage = ""
	}
}

// Apply sets status and applies fields in order.
func (v *Video) Apply(status Status, fields ...Field) {
	v.Status = status
	for _, field := range fields {
		if field != nil {
			field(v)
		}
	}
}

// StatusSummary is one row of the status × action breakdown.
type StatusSummary struct {
	Status        Status
	Action        strategy.Action
	Count         int
	TotalBytes    int64
	OutputBytes   int64
	AvgSavingsPct float64
}

// DatabaseHealth describes the ledger database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	Columns          []string
	TotalVideos      int
	TotalEvents      int
	Error            string
}
