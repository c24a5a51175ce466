// Package ffprobe wraps the ffprobe binary to validate produced containers:
// duration, resolution, bitrate, and stream layout.
package ffprobe
