// Package captions synthesizes SRT subtitle tracks from scene narration
// text and optional timing markers, keeping cue offsets aligned with the
// concatenated scene timeline.
package captions
