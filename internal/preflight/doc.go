// Package preflight provides readiness checks for the directories, shared
// stores, and binaries a vidshrink worker depends on.
//
// The CLI "vidshrink check" command prints every result. "vidshrink run"
// calls RunAll before touching the library and refuses to start when any
// required check fails.
package preflight
