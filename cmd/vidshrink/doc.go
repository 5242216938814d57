// Package main hosts the vidshrink CLI entrypoint and command graph.
//
// Every command runs in-process against the configured ledger, claim store,
// and transcode engine; there is no daemon. The command context resolves
// configuration once and builds the runtime on demand so read-only commands
// such as "status" and "claims list" never touch the worker lock.
//
// Add behaviour to the internal packages first and surface it here. Commands
// should only parse flags, call one workflow operation, and render its result.
package main
