// Package project consumes the manifests produced by the ingestion and
// narration collaborators: the ordered slide list, per-scene avatar and audio
// configuration, overlay layers, and optional timing-marker sidecars. It
// joins them into the ordered scene list the render pipeline operates on.
package project
