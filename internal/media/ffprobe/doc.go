// Package ffprobe runs ffprobe and decodes the JSON it prints.
//
// Only the fields the worker needs are modelled: the first video stream's
// codec, dimensions, and bitrate, plus container duration, size, bitrate, and
// the comment tag that carries the compression marker.
package ffprobe
