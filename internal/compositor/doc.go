// Package compositor renders per-scene video clips by layering avatar
// overlays and text onto slide images and muxing narration audio, delegating
// encoding to the ffmpeg transcode capability.
package compositor
