// Package workflow drives videos from pending work to committed artifacts.
//
// A Manager processes one video at a time: it takes the cross-machine claim,
// re-validates the file, records claimed and encoding, runs the transcode
// backend, applies the size gate, moves the original into the backup tree,
// renames the artifact into place, and only then records compressed and
// releases the claim. Every failure releases the claim and records failed;
// the loop moves on to the next video.
//
// Run wraps that in a batch with an optional stale-claim sweep and honours
// cancellation between files. Scan, Plan, Audit, Remediate and Bootstrap
// cover discovery and after-the-fact repair for the SQLite ledger.
package workflow
