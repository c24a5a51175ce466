// Package services defines the shared error taxonomy used across the render
// pipeline. Components wrap failures with sentinel markers so the orchestrator
// can classify them without inspecting message text.
package services
