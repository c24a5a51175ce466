package captions

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// WriteSRT renders entries in SubRip form, one indexed cue per block with
// comma-separated millisecond timestamps.
func WriteSRT(path string, entries []Entry) error {
	var b strings.Builder
	for i, entry := range entries {
		index := entry.Index
		if index == 0 {
			index = i + 1
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", index, formatTimestamp(entry.Start), formatTimestamp(entry.End), entry.Text())
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// ParseSRT reads a SubRip file back into entries. It accepts the subset this
// package writes and tolerates trailing blank lines.
func ParseSRT(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		index, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("expected cue index, got %q", line)
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("cue %d: missing timing line", index)
		}
		start, end, err := parseTiming(strings.TrimSpace(scanner.Text()))
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", index, err)
		}
		var lines []string
		for scanner.Scan() {
			text := strings.TrimRight(scanner.Text(), "\r")
			if strings.TrimSpace(text) == "" {
				break
			}
			lines = append(lines, text)
		}
		entries = append(entries, Entry{Index: index, Start: start, End: end, Lines: lines})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(math.Round(seconds * 1000))
	h := millis / 3_600_000
	millis -= h * 3_600_000
	m := millis / 60_000
	millis -= m * 60_000
	s := millis / 1000
	millis -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, millis)
}

func parseTiming(line string) (float64, float64, error) {
	parts := strings.Split(line, " --> ")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timing line %q", line)
	}
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseTimestamp(value string) (float64, error) {
	var h, m, s, ms int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d:%d:%d,%d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q", value)
	}
	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000, nil
}
