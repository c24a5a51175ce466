package captions

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Entry is one timed subtitle cue. Offsets are absolute seconds on the full
// timeline and render with millisecond precision.
type Entry struct {
	Index int
	Start float64
	End   float64
	Lines []string
}

// Text joins the cue lines for display.
func (e Entry) Text() string {
	return strings.Join(e.Lines, "\n")
}

// Limits bounds cue shape and duration.
type Limits struct {
	MaxCharsPerLine  int
	MaxLinesPerEntry int
	MinEntrySeconds  float64
	MaxEntrySeconds  float64
}

// splitChunks packs words greedily into line groups. A line never exceeds
// MaxCharsPerLine and a chunk never exceeds MaxLinesPerEntry lines; words
// longer than a full line are hard-wrapped so the limit holds regardless of
// input.
func splitChunks(text string, limits Limits) [][]string {
	words := strings.Fields(norm.NFC.String(text))
	if len(words) == 0 {
		return nil
	}

	var chunks [][]string
	var lines []string
	var line strings.Builder

	flushLine := func() {
		if line.Len() == 0 {
			return
		}
		lines = append(lines, line.String())
		line.Reset()
		if len(lines) == limits.MaxLinesPerEntry {
			chunks = append(chunks, lines)
			lines = nil
		}
	}

	appendWord := func(word string) {
		runes := []rune(word)
		for len(runes) > limits.MaxCharsPerLine {
			flushLine()
			lines = append(lines, string(runes[:limits.MaxCharsPerLine]))
			runes = runes[limits.MaxCharsPerLine:]
			if len(lines) == limits.MaxLinesPerEntry {
				chunks = append(chunks, lines)
				lines = nil
			}
		}
		word = string(runes)
		if word == "" {
			return
		}
		width := len(runes)
		if line.Len() > 0 {
			current := len([]rune(line.String()))
			if current+1+width > limits.MaxCharsPerLine {
				flushLine()
			}
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}

	for _, word := range words {
		appendWord(word)
	}
	flushLine()
	if len(lines) > 0 {
		chunks = append(chunks, lines)
	}
	return chunks
}
