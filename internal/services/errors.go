package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks missing or malformed required input. Jobs carrying
	// it are rejected at submit time and never enqueued.
	ErrValidation = errors.New("validation error")
	// ErrProvider marks an external avatar provider that is unavailable or
	// returned a failure. Recovered through the synthetic fallback.
	ErrProvider = errors.New("provider error")
	// ErrComposition marks an encoder failure or invalid output for one scene.
	ErrComposition = errors.New("composition error")
	// ErrExportValidation marks a final merge that produced an invalid file.
	ErrExportValidation = errors.New("export validation error")
	// ErrExternalTool marks a missing or misbehaving external binary.
	ErrExternalTool = errors.New("external tool error")
	// ErrNotFound marks lookups for unknown jobs or resources.
	ErrNotFound = errors.New("not found")
	// ErrCancelled marks work abandoned because cancellation was requested.
	ErrCancelled = errors.New("cancelled")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error must fail the whole job rather than be
// absorbed locally. Provider failures are always recoverable; composition
// failures are absorbed per scene by the retry policy before they reach here.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrProvider):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Message extracts the human-readable portion of a wrapped error, stripping
// the sentinel prefix so job records carry a clean description.
func Message(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	for _, marker := range []error{
		ErrValidation,
		ErrProvider,
		ErrComposition,
		ErrExportValidation,
		ErrExternalTool,
		ErrNotFound,
		ErrCancelled,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(text, prefix) {
			return strings.TrimPrefix(text, prefix)
		}
	}
	return text
}
