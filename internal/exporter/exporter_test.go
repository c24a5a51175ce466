package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/media/ffprobe"
	"slidecast/internal/services"
)

type fakeRunner struct {
	requests []ffmpeg.Request
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, req ffmpeg.Request, progress func(ffmpeg.ProgressUpdate)) error {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return f.err
	}
	if progress != nil {
		progress(ffmpeg.ProgressUpdate{Percent: 100, Done: true})
	}
	return os.WriteFile(req.Output.Path, []byte("merged"), 0o644)
}

func testRender() config.Render {
	return config.Render{Width: 1920, Height: 1080, FPS: 30}
}

func newTestExporter(runner ffmpeg.Runner, formats []config.OutputFormat, duration float64) *Exporter {
	e := New(testRender(), formats, runner, nil)
	e.probe = func(ctx context.Context, path string) (ffprobe.Report, error) {
		return ffprobe.Report{Format: ffprobe.Format{Duration: fmt.Sprintf("%0.1f", duration), Size: "6"}}, nil
	}
	return e
}

func sceneClips(t *testing.T, durations []int) []string {
	t.Helper()
	dir := t.TempDir()
	clips := make([]string, len(durations))
	for i := range durations {
		clips[i] = filepath.Join(dir, fmt.Sprintf("scene-%03d.mp4", i+1))
		if err := os.WriteFile(clips[i], []byte("clip"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return clips
}

func TestExportStreamCopiesMatchingCodecs(t *testing.T) {
	runner := &fakeRunner{}
	formats := []config.OutputFormat{{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", BitrateKbps: 4000}}
	e := newTestExporter(runner, formats, 50)
	clips := sceneClips(t, []int{8, 12, 10, 15, 5})
	outDir := t.TempDir()

	result, err := e.Export(context.Background(), clips, "", outDir, "final", nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(result.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(result.Outputs))
	}
	out := result.Outputs[0]
	if !out.StreamCopied {
		t.Error("matching codecs should stream-copy")
	}
	if out.DurationSeconds != 50 {
		t.Errorf("duration = %v, want concatenated 50", out.DurationSeconds)
	}

	req := runner.requests[0]
	if req.Output.VideoCodec != "copy" || req.Output.AudioCodec != "copy" {
		t.Errorf("expected stream copy, got %+v", req.Output)
	}
	if req.Output.BitrateKbps != 0 {
		t.Error("stream copy must not carry rate control")
	}
	if req.Inputs[0].Format != "concat" {
		t.Errorf("expected concat demuxer input, got %+v", req.Inputs[0])
	}
}

func TestExportReencodesMismatchedCodecs(t *testing.T) {
	runner := &fakeRunner{}
	formats := []config.OutputFormat{{Container: "webm", VideoCodec: "vp9", AudioCodec: "opus", BitrateKbps: 2000}}
	e := newTestExporter(runner, formats, 50)
	clips := sceneClips(t, []int{10, 10})

	result, err := e.Export(context.Background(), clips, "", t.TempDir(), "final", nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.Outputs[0].StreamCopied {
		t.Error("vp9/opus must re-encode")
	}
	req := runner.requests[0]
	if req.Output.VideoCodec != "libvpx-vp9" || req.Output.AudioCodec != "libopus" {
		t.Errorf("unexpected encoders: %+v", req.Output)
	}
	if req.Output.BitrateKbps != 2000 {
		t.Errorf("bitrate = %d, want 2000", req.Output.BitrateKbps)
	}
}

func TestExportIsRepeatable(t *testing.T) {
	runner := &fakeRunner{}
	formats := []config.OutputFormat{{Container: "webm", VideoCodec: "vp9", AudioCodec: "opus", BitrateKbps: 2000}}
	e := newTestExporter(runner, formats, 50)
	clips := sceneClips(t, []int{10, 20, 20})
	outDir := t.TempDir()

	first, err := e.Export(context.Background(), clips, "", outDir, "final", nil)
	if err != nil {
		t.Fatalf("first Export: %v", err)
	}
	second, err := e.Export(context.Background(), clips, "", outDir, "final", nil)
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}

	if first.Outputs[0].DurationSeconds != second.Outputs[0].DurationSeconds {
		t.Errorf("duration changed between runs: %v vs %v",
			first.Outputs[0].DurationSeconds, second.Outputs[0].DurationSeconds)
	}
	if len(runner.requests) != 2 {
		t.Fatalf("expected 2 encode requests, got %d", len(runner.requests))
	}
	a, b := runner.requests[0].Output, runner.requests[1].Output
	if a.Width != b.Width || a.Height != b.Height || a.FPS != b.FPS {
		t.Errorf("resolution drifted between runs: %+v vs %+v", a, b)
	}
	if a.Width != 1920 || a.Height != 1080 || a.FPS != 30 {
		t.Errorf("unexpected render settings: %+v", a)
	}
}

func TestCaptionEmbeddingPerContainer(t *testing.T) {
	cases := []struct {
		container string
		wantCodec string
	}{
		{"mp4", "mov_text"},
		{"mkv", "srt"},
		{"webm", ""},
	}
	for _, tc := range cases {
		t.Run(tc.container, func(t *testing.T) {
			runner := &fakeRunner{}
			formats := []config.OutputFormat{{Container: tc.container, VideoCodec: "h264", AudioCodec: "aac"}}
			e := newTestExporter(runner, formats, 20)
			clips := sceneClips(t, []int{10, 10})
			outDir := t.TempDir()
			captions := filepath.Join(outDir, "captions.srt")
			if err := os.WriteFile(captions, []byte("1\n00:00:00,000 --> 00:00:02,000\nola\n\n"), 0o644); err != nil {
				t.Fatal(err)
			}

			result, err := e.Export(context.Background(), clips, captions, outDir, "final", nil)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			req := runner.requests[0]
			if tc.wantCodec == "" {
				if req.Output.SubtitlePath != "" {
					t.Error("webm must not embed subtitles")
				}
			} else if req.Output.SubtitleCodec != tc.wantCodec {
				t.Errorf("subtitle codec = %q, want %q", req.Output.SubtitleCodec, tc.wantCodec)
			}
			if result.CaptionPath == "" {
				t.Fatal("SRT must be copied alongside the outputs")
			}
			if _, err := os.Stat(result.CaptionPath); err != nil {
				t.Errorf("caption sidecar missing: %v", err)
			}
		})
	}
}

func TestConcatListPreservesSceneOrder(t *testing.T) {
	dir := t.TempDir()
	clips := []string{
		filepath.Join(dir, "scene-001.mp4"),
		filepath.Join(dir, "scene-002.mp4"),
		filepath.Join(dir, "scene-003.mp4"),
	}
	listPath := filepath.Join(dir, "list.txt")
	if err := writeConcatList(listPath, clips); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	for i, line := range lines {
		if !strings.Contains(line, fmt.Sprintf("scene-%03d.mp4", i+1)) {
			t.Errorf("line %d out of order: %q", i, line)
		}
	}
}

func TestExportFailsValidationOnZeroDuration(t *testing.T) {
	runner := &fakeRunner{}
	formats := []config.OutputFormat{{Container: "mp4"}}
	e := newTestExporter(runner, formats, 0)
	clips := sceneClips(t, []int{10})

	_, err := e.Export(context.Background(), clips, "", t.TempDir(), "final", nil)
	if !errors.Is(err, services.ErrExportValidation) {
		t.Fatalf("expected export validation error, got %v", err)
	}
}

func TestExportCleansUpConcatListOnFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("mux failed")}
	formats := []config.OutputFormat{{Container: "mp4"}}
	e := newTestExporter(runner, formats, 50)
	clips := sceneClips(t, []int{10})
	outDir := t.TempDir()

	_, err := e.Export(context.Background(), clips, "", outDir, "final", nil)
	if !errors.Is(err, services.ErrExportValidation) {
		t.Fatalf("expected export validation error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "final.concat.txt")); !os.IsNotExist(statErr) {
		t.Error("concat list must be removed on failure")
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "final.mp4")); !os.IsNotExist(statErr) {
		t.Error("failed output must be removed")
	}
}

func TestExportProgressSpansFormats(t *testing.T) {
	runner := &fakeRunner{}
	formats := []config.OutputFormat{
		{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac"},
		{Container: "mkv", VideoCodec: "h264", AudioCodec: "aac"},
	}
	e := newTestExporter(runner, formats, 50)
	clips := sceneClips(t, []int{10})

	var updates []float64
	_, err := e.Export(context.Background(), clips, "", t.TempDir(), "final", func(pct float64) {
		updates = append(updates, pct)
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(updates) == 0 {
		t.Fatal("expected progress updates")
	}
	for i := 1; i < len(updates); i++ {
		if updates[i] < updates[i-1] {
			t.Fatalf("progress regressed: %v", updates)
		}
	}
	if last := updates[len(updates)-1]; last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
}
