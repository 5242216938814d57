// Package claim implements the cross-machine mutual exclusion store.
//
// A claim is a marker keyed by the SHA-256 of a video's absolute path. Whoever
// creates the marker first owns the video until the marker is released or
// recovered as stale. The directory store relies only on exclusive file
// creation, which network filesystems such as CIFS honour even when byte-range
// locking does not. The redis store offers the same contract through SETNX for
// sites that run a Redis instance, and Memory is a deterministic fake for tests.
//
// Every machine must see the library at the same absolute path; keys derived
// from different mount points never collide and therefore never exclude.
package claim
