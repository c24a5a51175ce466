// Package daemon hosts the long-running slidecast process: it owns the
// single-instance lock, runs the render orchestrator and exposes the local
// HTTP job-control API.
package daemon
