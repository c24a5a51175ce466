// Package render drives the end-to-end pipeline: it drains the job queue
// with a bounded worker pool and walks each claimed job through avatar
// generation, scene composition, caption synthesis and the final merge.
package render
