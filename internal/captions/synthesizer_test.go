package captions

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/project"
)

func testConfig() config.Captions {
	return config.Captions{
		Enabled:          true,
		MaxCharsPerLine:  40,
		MaxLinesPerEntry: 2,
		MinEntrySeconds:  1.0,
		MaxEntrySeconds:  7.0,
	}
}

func TestLineWidthRespectsLimitsWithAccentedText(t *testing.T) {
	synth := NewSynthesizer(testConfig(), nil)
	scene := project.Scene{
		SlideID:         1,
		Text:            "Riscos elétricos. Medidas preventivas. EPI obrigatório.",
		DurationSeconds: 6,
	}

	entries, _, err := synth.BuildEntries([]project.Scene{scene}, nil)
	if err != nil {
		t.Fatalf("BuildEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	want := []string{"Riscos elétricos. Medidas preventivas.", "EPI obrigatório."}
	if len(entries[0].Lines) != len(want) {
		t.Fatalf("expected %d lines, got %v", len(want), entries[0].Lines)
	}
	for i, line := range entries[0].Lines {
		if line != want[i] {
			t.Errorf("line %d = %q, want %q", i, line, want[i])
		}
		if width := len([]rune(line)); width > 40 {
			t.Errorf("line %d is %d runes wide", i, width)
		}
	}
}

func TestSentenceMarkersDriveAbsoluteOffsets(t *testing.T) {
	dir := t.TempDir()
	markersPath := filepath.Join(dir, "markers-2.json")
	markers := project.Markers{
		Sentences: []project.Sentence{
			{Text: "Use capacete e luvas", StartTime: 0.5, EndTime: 2.5},
		},
	}
	data, err := json.Marshal(markers)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(markersPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	scenes := []project.Scene{
		{SlideID: 1, Text: "Primeira cena", DurationSeconds: 10},
		{SlideID: 2, Text: "Use capacete e luvas", DurationSeconds: 8, MarkersPath: markersPath},
	}

	synth := NewSynthesizer(testConfig(), nil)
	entries, perScene, err := synth.BuildEntries(scenes, nil)
	if err != nil {
		t.Fatalf("BuildEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	second := entries[1]
	if math.Abs(second.Start-10.5) > 1e-9 {
		t.Errorf("second cue starts at %0.3f, want 10.5", second.Start)
	}
	if math.Abs(second.End-12.5) > 1e-9 {
		t.Errorf("second cue ends at %0.3f, want 12.5", second.End)
	}

	local := perScene[2]
	if len(local) != 1 {
		t.Fatalf("expected 1 scene-local entry, got %d", len(local))
	}
	if math.Abs(local[0].Start-0.5) > 1e-9 {
		t.Errorf("scene-local cue starts at %0.3f, want 0.5", local[0].Start)
	}
}

func TestDurationClampedToMax(t *testing.T) {
	synth := NewSynthesizer(testConfig(), nil)
	scene := project.Scene{SlideID: 1, Text: "Uma frase curta", DurationSeconds: 20}

	entries, _, err := synth.BuildEntries([]project.Scene{scene}, nil)
	if err != nil {
		t.Fatalf("BuildEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if span := entries[0].End - entries[0].Start; math.Abs(span-7.0) > 1e-9 {
		t.Errorf("span = %0.3f, want 7.0", span)
	}
}

func TestRenderedDurationsOverrideManifest(t *testing.T) {
	synth := NewSynthesizer(testConfig(), nil)
	scenes := []project.Scene{
		{SlideID: 1, Text: "Primeira", DurationSeconds: 5},
		{SlideID: 2, Text: "Segunda", DurationSeconds: 5},
	}
	durations := map[int]float64{1: 3, 2: 4}

	entries, _, err := synth.BuildEntries(scenes, durations)
	if err != nil {
		t.Fatalf("BuildEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if math.Abs(entries[1].Start-3.0) > 1e-9 {
		t.Errorf("second cue starts at %0.3f, want 3.0", entries[1].Start)
	}
}

func TestGenerateWritesValidTrack(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.PerScene = true
	synth := NewSynthesizer(cfg, nil)
	scenes := []project.Scene{
		{SlideID: 1, Text: "Riscos elétricos no canteiro de obras exigem atenção constante de toda a equipe", DurationSeconds: 12},
		{SlideID: 2, Text: "Sempre desligue o disjuntor antes de qualquer intervenção", DurationSeconds: 8},
	}

	result, err := synth.Generate(scenes, nil, dir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("expected no violations, got %v", result.Violations)
	}
	if result.EntryCount == 0 {
		t.Fatal("expected at least one entry")
	}
	if len(result.SceneTracks) != 2 {
		t.Fatalf("expected 2 scene tracks, got %d", len(result.SceneTracks))
	}

	entries, err := ParseSRT(result.TrackPath)
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(entries) != result.EntryCount {
		t.Fatalf("round trip lost entries: wrote %d, read %d", result.EntryCount, len(entries))
	}
	for i, entry := range entries {
		if entry.Index != i+1 {
			t.Errorf("entry %d has index %d", i, entry.Index)
		}
		if i+1 < len(entries) && entry.End > entries[i+1].Start+timeEpsilon {
			t.Errorf("entry %d overlaps the next cue", entry.Index)
		}
	}
}

func TestSplitChunksHardWrapsOversizedWords(t *testing.T) {
	limits := Limits{MaxCharsPerLine: 10, MaxLinesPerEntry: 2}
	chunks := splitChunks("Pneumoultramicroscopicossilicovulcanoconiótico sim", limits)
	for _, lines := range chunks {
		for _, line := range lines {
			if width := len([]rune(line)); width > 10 {
				t.Errorf("line %q is %d runes wide", line, width)
			}
		}
		if len(lines) > 2 {
			t.Errorf("chunk has %d lines", len(lines))
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.042, "00:01:01,042"},
		{3723.9, "01:02:03,900"},
	}
	for _, tc := range cases {
		if got := formatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
