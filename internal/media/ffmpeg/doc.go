// Package ffmpeg exposes the external encoder as a typed transcode
// capability: callers describe inputs, a filter graph, and an output spec,
// and a Runner turns that into one subprocess invocation with a parsed
// progress stream. Command-line construction stays behind this boundary.
package ffmpeg
