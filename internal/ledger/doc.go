// Package ledger records the processing state of every video in the library.
//
// Ledger is the backend-agnostic contract the worker loop drives. Store is the
// per-machine SQLite implementation: a videos table keyed uniquely by path and
// an append-only processing_log referencing it. The fsledger subpackage
// provides the schema-less alternative that derives state from the files
// themselves.
package ledger
