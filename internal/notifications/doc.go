// Package notifications delivers render lifecycle events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The Subscriber adapter hooks the service into the progress event
// stream so pipeline code never talks HTTP directly.
package notifications
