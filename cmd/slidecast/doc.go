// Package main hosts the slidecast CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the render daemon, plus configuration scaffolding and a
// foreground daemon runner. Configuration resolution and API address
// discovery live in commandContext so subcommands stay declarative; the
// heavy lifting belongs to the internal packages.
package main
