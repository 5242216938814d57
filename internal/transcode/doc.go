// Package transcode wraps the external media tools the worker drives.
//
// Backend is the boundary the worker loop depends on: probe a file, encode it
// into a hidden temporary artifact next to the source, or remux it into the
// target container. FFmpeg shells out to ffmpeg/ffprobe; Drapto encodes with
// the drapto library and then stamps the idempotency tag with an ffmpeg
// stream copy. Neither engine touches the source file; committing the
// artifact is the caller's job.
package transcode
