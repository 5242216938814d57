// Package services defines shared utilities consumed by the worker loop and
// the external tool wrappers.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, video paths, ledger IDs, and stage
//     names for logging.
//   - Structured error markers plus the Wrap helper so failures keep their
//     classification (timeout, external tool, backup, finalize) as they bubble
//     up into ledger error messages.
//
// Use these helpers when wiring new worker steps so error handling and
// observability stay uniform.
package services
