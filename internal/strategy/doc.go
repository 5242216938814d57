// Package strategy decides what to do with a video given its probed metadata.
//
// Decide is a pure function of a Policy and an Input: no I/O, no clock, no
// globals. Policies are versioned values; the version that produced a Decision
// is recorded on it so ledger rows can be re-evaluated when the policy moves.
package strategy
