package captions

import "fmt"

// Violation reports one limit an emitted cue breaks.
type Violation struct {
	Index  int
	Rule   string
	Detail string
}

// Validate checks a finished cue sequence against the configured limits:
// line width, line count, duration bounds and overlap with the next cue.
// Duration bounds are advisory when overlap clamping shortened a cue, so a
// too-short final span only counts when the cue was not squeezed by its
// neighbor.
func Validate(entries []Entry, limits Limits) []Violation {
	var violations []Violation
	add := func(index int, rule, format string, args ...any) {
		violations = append(violations, Violation{Index: index, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	for i, entry := range entries {
		if limits.MaxLinesPerEntry > 0 && len(entry.Lines) > limits.MaxLinesPerEntry {
			add(entry.Index, "max_lines", "%d lines exceeds limit %d", len(entry.Lines), limits.MaxLinesPerEntry)
		}
		if limits.MaxCharsPerLine > 0 {
			for _, line := range entry.Lines {
				if width := len([]rune(line)); width > limits.MaxCharsPerLine {
					add(entry.Index, "max_chars", "line %q is %d chars, limit %d", line, width, limits.MaxCharsPerLine)
				}
			}
		}
		if entry.End <= entry.Start {
			add(entry.Index, "empty_span", "end %0.3f not after start %0.3f", entry.End, entry.Start)
		}
		span := entry.End - entry.Start
		if limits.MaxEntrySeconds > 0 && span > limits.MaxEntrySeconds+timeEpsilon {
			add(entry.Index, "max_duration", "%0.3fs exceeds limit %0.1fs", span, limits.MaxEntrySeconds)
		}
		squeezed := i+1 < len(entries) && entry.End == entries[i+1].Start
		if limits.MinEntrySeconds > 0 && span < limits.MinEntrySeconds-timeEpsilon && !squeezed {
			add(entry.Index, "min_duration", "%0.3fs below limit %0.1fs", span, limits.MinEntrySeconds)
		}
		if i+1 < len(entries) && entry.End > entries[i+1].Start+timeEpsilon {
			add(entry.Index, "overlap", "end %0.3f overlaps next start %0.3f", entry.End, entries[i+1].Start)
		}
	}
	return violations
}

// timeEpsilon absorbs millisecond rounding from the SRT round trip.
const timeEpsilon = 0.002
