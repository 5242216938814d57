// Package logs reads the JSON log and event files vidshrink writes.
//
// Last returns the final N matching lines with bounded memory, and Follow
// polls for appended lines until its context ends, starting over when the
// file is truncated or replaced. Matchers filter JSON records by video path,
// event type, or level without the caller decoding each line.
package logs
