package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Input describes one encoder input.
type Input struct {
	Path string
	// Format overrides input demuxing (e.g. "concat" for a concat list file,
	// "lavfi" for synthesized sources).
	Format string
	// Loop repeats a still image for the duration of the clip.
	Loop bool
	// DurationSeconds caps how long this input is read; 0 means unbounded.
	DurationSeconds float64
}

// OutputSpec describes the single output an invocation produces.
type OutputSpec struct {
	Path       string
	VideoCodec string
	AudioCodec string
	// BitrateKbps is the target video bitrate. When set, maxrate is pinned at
	// 1.5x the target and bufsize at 2x. Zero leaves rate control to the codec.
	BitrateKbps     int
	Width           int
	Height          int
	FPS             int
	DurationSeconds float64
	// SubtitlePath names a caption file appended as an extra input and mapped
	// as a soft subtitle stream encoded with SubtitleCodec.
	SubtitlePath  string
	SubtitleCodec string
	// Flags are appended verbatim before the output path.
	Flags []string
}

// Request is one complete encoder invocation.
type Request struct {
	Inputs      []Input
	FilterGraph string
	// VideoLabel and AudioLabel select filter-graph outputs to map. Empty
	// labels fall back to ffmpeg's default stream selection.
	VideoLabel string
	AudioLabel string
	Output     OutputSpec
}

// Args renders the invocation into command-line arguments.
func (r Request) Args() []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}

	for _, input := range r.Inputs {
		if input.Format != "" {
			args = append(args, "-f", input.Format)
			if input.Format == "concat" {
				args = append(args, "-safe", "0")
			}
		}
		if input.Loop {
			args = append(args, "-loop", "1")
		}
		if input.DurationSeconds > 0 {
			args = append(args, "-t", formatSeconds(input.DurationSeconds))
		}
		args = append(args, "-i", input.Path)
	}

	if r.Output.SubtitlePath != "" {
		args = append(args, "-i", r.Output.SubtitlePath)
	}

	if r.FilterGraph != "" {
		args = append(args, "-filter_complex", r.FilterGraph)
	}
	if r.VideoLabel != "" {
		args = append(args, "-map", "["+r.VideoLabel+"]")
	}
	if r.AudioLabel != "" {
		args = append(args, "-map", "["+r.AudioLabel+"]")
	}
	if r.Output.SubtitlePath != "" {
		// Explicit maps disable default stream selection, so the media input
		// must be mapped alongside the caption input.
		if r.VideoLabel == "" && r.AudioLabel == "" {
			args = append(args, "-map", "0")
		}
		args = append(args, "-map", strconv.Itoa(len(r.Inputs)))
	}

	out := r.Output
	if out.VideoCodec != "" {
		args = append(args, "-c:v", out.VideoCodec)
	}
	if out.AudioCodec != "" {
		args = append(args, "-c:a", out.AudioCodec)
	}
	if out.SubtitlePath != "" && out.SubtitleCodec != "" {
		args = append(args, "-c:s", out.SubtitleCodec)
	}
	if out.BitrateKbps > 0 {
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", out.BitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", out.BitrateKbps*3/2),
			"-bufsize", fmt.Sprintf("%dk", out.BitrateKbps*2),
		)
	}
	if out.Width > 0 && out.Height > 0 && out.VideoCodec != "copy" {
		args = append(args, "-s", fmt.Sprintf("%dx%d", out.Width, out.Height))
	}
	if out.FPS > 0 && out.VideoCodec != "copy" {
		args = append(args, "-r", strconv.Itoa(out.FPS))
	}
	if out.DurationSeconds > 0 {
		args = append(args, "-t", formatSeconds(out.DurationSeconds))
	}
	args = append(args, out.Flags...)
	args = append(args, "-progress", "pipe:1", out.Path)
	return args
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}

// CommandLine renders the request for log output.
func (r Request) CommandLine(binary string) string {
	return binary + " " + strings.Join(r.Args(), " ")
}
