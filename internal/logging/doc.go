// Package logging builds the slog loggers used throughout slidecast and
// provides typed attribute helpers plus shared field-name constants.
package logging
