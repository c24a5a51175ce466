// Package config loads and validates the TOML configuration that drives the
// render pipeline: directories, encoder settings, requested output formats,
// lip-sync providers, caption limits, and daemon timing.
package config
