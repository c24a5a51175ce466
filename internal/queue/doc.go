// Package queue persists render jobs in SQLite and provides the atomic FIFO
// claim the orchestrator's workers compete on. Job records follow a
// single-writer discipline: only the worker that claimed a job mutates it,
// and readers always receive snapshots.
package queue
