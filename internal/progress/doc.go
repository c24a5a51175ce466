// Package progress computes phase-weighted completion percentages, ETA, and
// throughput for render jobs, and fans events out to subscribers. Percentages
// are monotonically non-decreasing within a job, and estimation never fails a
// caller: unknown estimates render as an em dash.
package progress
