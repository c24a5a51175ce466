// Package lipsync coordinates avatar clip generation across ranked external
// providers, degrading to a locally rendered placeholder clip when no
// provider can deliver.
package lipsync
