package workflow

import (
	"time"

	"vidshrink/internal/ledger"
)

// Outcome is the tagged result of processing one video.
type Outcome string

const (
	// OutcomeCompressed: encoded, committed, original backed up.
	OutcomeCompressed Outcome = "compressed"
	// OutcomeRemuxed: stream-copied into the target container and committed.
	OutcomeRemuxed Outcome = "remuxed"
	// OutcomeNoSavings: the size gate rejected the artifact.
	OutcomeNoSavings Outcome = "no_savings"
	// OutcomeFailed: a backend, backup or commit step failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeAlreadyClaimed: another worker holds the claim; nothing was written.
	OutcomeAlreadyClaimed Outcome = "already_claimed"
	// OutcomeAborted: the file vanished or gained a tag since listing.
	OutcomeAborted Outcome = "aborted"
	// OutcomeSkipped: the decision was a skip; recorded without a claim.
	OutcomeSkipped Outcome = "skipped"
)

// Result describes what Process did.
type Result struct {
	Outcome    Outcome
	Video      *ledger.Video
	InputSize  int64
	OutputSize int64
	SavingsPct float64
	OutputPath string
	BackupPath string
	Elapsed    time.Duration
	Err        error
}

// Saved returns the bytes reclaimed by a committed result.
func (r Result) Saved() int64 {
	if r.Outcome != OutcomeCompressed && r.Outcome != OutcomeRemuxed {
		return 0
	}
	return r.InputSize - r.OutputSize
}

// RunStats summarises a Run.
type RunStats struct {
	RunID          string
	Pending        int
	Compressed     int
	Remuxed        int
	NoSavings      int
	Failed         int
	Skipped        int
	AlreadyClaimed int
	Aborted        int
	Recovered      int
	BytesIn        int64
	BytesOut       int64
	Interrupted    bool
	DryRun         bool
	Elapsed        time.Duration
}

// Attempted counts videos this machine claimed and worked on.
func (s RunStats) Attempted() int {
	return s.Compressed + s.Remuxed + s.NoSavings + s.Failed
}

func (s *RunStats) add(r Result) {
	switch r.Outcome {
	case OutcomeCompressed:
		s.Compressed++
	case OutcomeRemuxed:
		s.Remuxed++
	case OutcomeNoSavings:
		s.NoSavings++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeAlreadyClaimed:
		s.AlreadyClaimed++
	case OutcomeAborted:
		s.Aborted++
	}
	if r.Outcome == OutcomeCompressed || r.Outcome == OutcomeRemuxed {
		s.BytesIn += r.InputSize
		s.BytesOut += r.OutputSize
	}
}

// SavingsPercent returns the percentage reduction of size out against size in.
func SavingsPercent(in, out int64) float64 {
	if in <= 0 {
		return 0
	}
	return (1 - float64(out)/float64(in)) * 100
}
