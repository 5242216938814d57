// Package logging assembles structured slog loggers for vidshrink.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker code automatically
// tags log lines with the machine name, run ID, and video path. Console output
// goes to stderr while a JSON copy lands in the configured log directory so
// the record of every run survives the terminal session.
//
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
