// Package exporter merges rendered scene clips into the final deliverables,
// one file per configured output format, embedding caption tracks where the
// container allows and validating every output with a probe pass.
package exporter
