package ffmpeg

import (
	"context"
	"math"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestProgressParserEmitsPerBlock(t *testing.T) {
	parser := newProgressParser(10)
	lines := []string{
		"frame=120",
		"out_time_us=2500000",
		"speed=1.25x",
		"progress=continue",
	}
	var got ProgressUpdate
	emitted := 0
	for _, line := range lines {
		if update, ok := parser.consume(line); ok {
			got = update
			emitted++
		}
	}
	if emitted != 1 {
		t.Fatalf("expected one update, got %d", emitted)
	}
	if got.OutTime != 2500*time.Millisecond {
		t.Fatalf("out time = %v", got.OutTime)
	}
	if math.Abs(got.Percent-25) > 0.01 {
		t.Fatalf("percent = %.2f, want 25", got.Percent)
	}
	if math.Abs(got.Speed-1.25) > 0.001 {
		t.Fatalf("speed = %.2f, want 1.25", got.Speed)
	}
	if got.Done {
		t.Fatal("continue block must not be done")
	}
}

func TestProgressParserEnd(t *testing.T) {
	parser := newProgressParser(10)
	parser.consume("out_time_us=9999999")
	update, ok := parser.consume("progress=end")
	if !ok {
		t.Fatal("expected end update")
	}
	if !update.Done || update.Percent != 100 {
		t.Fatalf("end update = %+v", update)
	}
}

func TestProgressParserUnknownDuration(t *testing.T) {
	parser := newProgressParser(0)
	parser.consume("out_time_us=1000000")
	update, _ := parser.consume("progress=continue")
	if update.Percent != -1 {
		t.Fatalf("percent without duration = %.2f, want -1", update.Percent)
	}
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	cli := NewCLI()
	if err := cli.Run(context.Background(), Request{}, nil); err == nil {
		t.Fatal("expected error for empty request")
	}
	req := Request{Inputs: []Input{{Path: "in.png"}}}
	if err := cli.Run(context.Background(), req, nil); err == nil {
		t.Fatal("expected error for missing output path")
	}
}

func TestRunStreamsProgress(t *testing.T) {
	restore := commandContext
	t.Cleanup(func() { commandContext = restore })
	commandContext = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		script := `printf 'out_time_us=4000000\nspeed=2.0x\nprogress=continue\nout_time_us=8000000\nprogress=end\n'`
		return exec.CommandContext(ctx, "sh", "-c", script)
	}

	cli := NewCLI(WithBinary("ffmpeg-fake"))
	req := Request{
		Inputs: []Input{{Path: "slide.png", Loop: true}},
		Output: OutputSpec{Path: "out.mp4", DurationSeconds: 8},
	}
	var updates []ProgressUpdate
	if err := cli.Run(context.Background(), req, func(u ProgressUpdate) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if math.Abs(updates[0].Percent-50) > 0.01 {
		t.Fatalf("first percent = %.2f, want 50", updates[0].Percent)
	}
	if !updates[1].Done {
		t.Fatal("final update should be done")
	}
}

func TestRunSurfacesStderrExcerpt(t *testing.T) {
	restore := commandContext
	t.Cleanup(func() { commandContext = restore })
	commandContext = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", `echo "No such filter: bogus" >&2; exit 1`)
	}

	cli := NewCLI()
	req := Request{
		Inputs: []Input{{Path: "slide.png"}},
		Output: OutputSpec{Path: "out.mp4"},
	}
	err := cli.Run(context.Background(), req, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if want := "No such filter: bogus"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q missing stderr excerpt %q", err, want)
	}
}
