package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/media/ffprobe"
	"slidecast/internal/services"
)

// Intermediate scene clips are always encoded with these codecs, so a format
// asking for the same pair can be stream-copied instead of re-encoded.
const (
	intermediateVideoCodec = "h264"
	intermediateAudioCodec = "aac"
)

// Output is one delivered file.
type Output struct {
	Format          string  `json:"format"`
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	StreamCopied    bool    `json:"stream_copied"`
}

// Result collects everything the final merge produced.
type Result struct {
	Outputs     []Output `json:"outputs"`
	CaptionPath string   `json:"caption_path,omitempty"`
}

// Exporter concatenates ordered scene clips into the final deliverables.
type Exporter struct {
	render  config.Render
	formats []config.OutputFormat
	runner  ffmpeg.Runner
	logger  *slog.Logger

	probe func(ctx context.Context, path string) (ffprobe.Report, error)
}

// Option adjusts exporter construction.
type Option func(*Exporter)

// WithProbe substitutes the validation probe. Tests use this to avoid
// spawning ffprobe.
func WithProbe(probe func(ctx context.Context, path string) (ffprobe.Report, error)) Option {
	return func(e *Exporter) {
		if probe != nil {
			e.probe = probe
		}
	}
}

func New(render config.Render, formats []config.OutputFormat, runner ffmpeg.Runner, logger *slog.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Exporter{
		render:  render,
		formats: formats,
		runner:  runner,
		logger:  logging.WithComponent(logger, "exporter"),
	}
	e.probe = func(ctx context.Context, path string) (ffprobe.Report, error) {
		return ffprobe.Inspect(ctx, render.FFprobeBinary, path)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export merges sceneClips (already in scene order) into one file per
// configured format under outDir. captionTrack, when non-empty, is embedded
// where the container supports soft subtitles and always copied alongside
// the outputs. Progress spans all formats evenly.
func (e *Exporter) Export(ctx context.Context, sceneClips []string, captionTrack, outDir, baseName string, onProgress func(percent float64)) (*Result, error) {
	if len(sceneClips) == 0 {
		return nil, services.Wrap(services.ErrExportValidation, "exporter", "merge", "no scene clips to merge", nil)
	}
	if len(e.formats) == 0 {
		return nil, services.Wrap(services.ErrExportValidation, "exporter", "merge", "no output formats configured", nil)
	}

	concatPath := filepath.Join(outDir, baseName+".concat.txt")
	if err := writeConcatList(concatPath, sceneClips); err != nil {
		return nil, services.Wrap(services.ErrExportValidation, "exporter", "merge", "failed to write concat list", err)
	}
	defer os.Remove(concatPath)

	result := &Result{}
	total := len(e.formats)
	for i, format := range e.formats {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrCancelled, "exporter", "merge", "export interrupted", err)
		}
		base := float64(i) / float64(total) * 100
		share := 100 / float64(total)
		output, err := e.exportFormat(ctx, concatPath, captionTrack, outDir, baseName, format, func(pct float64) {
			if onProgress != nil {
				onProgress(base + pct*share/100)
			}
		})
		if err != nil {
			return nil, err
		}
		result.Outputs = append(result.Outputs, output)
	}

	if captionTrack != "" {
		dest := filepath.Join(outDir, baseName+".srt")
		if err := copyFile(captionTrack, dest); err != nil {
			return nil, services.Wrap(services.ErrExportValidation, "exporter", "captions", "failed to copy caption track", err)
		}
		result.CaptionPath = dest
	}
	if onProgress != nil {
		onProgress(100)
	}
	return result, nil
}

func (e *Exporter) exportFormat(ctx context.Context, concatPath, captionTrack, outDir, baseName string, format config.OutputFormat, onProgress func(float64)) (Output, error) {
	container := strings.ToLower(format.Container)
	outputPath := filepath.Join(outDir, baseName+"."+container)
	copyStreams := canStreamCopy(format)

	spec := ffmpeg.OutputSpec{Path: outputPath}
	if copyStreams {
		spec.VideoCodec = "copy"
		spec.AudioCodec = "copy"
	} else {
		spec.VideoCodec = videoEncoderFor(format.VideoCodec)
		spec.AudioCodec = audioEncoderFor(format.AudioCodec)
		spec.BitrateKbps = format.BitrateKbps
		spec.Width = e.render.Width
		spec.Height = e.render.Height
		spec.FPS = e.render.FPS
	}
	if captionTrack != "" {
		if codec := subtitleCodecFor(container); codec != "" {
			spec.SubtitlePath = captionTrack
			spec.SubtitleCodec = codec
		}
	}

	req := ffmpeg.Request{
		Inputs: []ffmpeg.Input{{Path: concatPath, Format: "concat"}},
		Output: spec,
	}
	if e.render.EncoderTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.render.EncoderTimeoutSeconds)*time.Second)
		defer cancel()
	}
	err := e.runner.Run(ctx, req, func(update ffmpeg.ProgressUpdate) {
		if update.Percent >= 0 {
			onProgress(update.Percent)
		}
	})
	if err != nil {
		os.Remove(outputPath)
		return Output{}, services.Wrap(services.ErrExportValidation, "exporter", "merge",
			fmt.Sprintf("%s export failed", container), err)
	}

	output, err := e.validate(ctx, outputPath, container)
	if err != nil {
		return Output{}, err
	}
	output.StreamCopied = copyStreams
	e.logger.Info("format exported",
		logging.String(logging.FieldEventType, "format_exported"),
		logging.String("container", container),
		logging.Bool("stream_copied", copyStreams),
		logging.String("path", outputPath))
	return output, nil
}

// validate re-probes a finished file. Unreadable, zero-duration or zero-byte
// outputs fail the job.
func (e *Exporter) validate(ctx context.Context, path, container string) (Output, error) {
	report, err := e.probe(ctx, path)
	if err != nil {
		return Output{}, services.Wrap(services.ErrExportValidation, "exporter", "validate",
			fmt.Sprintf("%s output is unreadable", container), err)
	}
	duration := report.DurationSeconds()
	size := report.SizeBytes()
	if size == 0 {
		if info, statErr := os.Stat(path); statErr == nil {
			size = info.Size()
		}
	}
	if duration <= 0 {
		return Output{}, services.Wrap(services.ErrExportValidation, "exporter", "validate",
			fmt.Sprintf("%s output has zero duration", container), nil)
	}
	if size == 0 {
		return Output{}, services.Wrap(services.ErrExportValidation, "exporter", "validate",
			fmt.Sprintf("%s output is empty", container), nil)
	}
	return Output{Format: container, Path: path, DurationSeconds: duration, SizeBytes: size}, nil
}

// canStreamCopy reports whether the requested codecs match the intermediate
// clips, making re-encoding unnecessary.
func canStreamCopy(format config.OutputFormat) bool {
	video := strings.ToLower(strings.TrimSpace(format.VideoCodec))
	audio := strings.ToLower(strings.TrimSpace(format.AudioCodec))
	return (video == "" || video == intermediateVideoCodec) &&
		(audio == "" || audio == intermediateAudioCodec)
}

// videoEncoderFor maps a codec name from config to the ffmpeg encoder that
// produces it.
func videoEncoderFor(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "", "h264":
		return "libx264"
	case "h265", "hevc":
		return "libx265"
	case "vp9":
		return "libvpx-vp9"
	default:
		return codec
	}
}

func audioEncoderFor(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "", "aac":
		return "aac"
	case "opus":
		return "libopus"
	case "vorbis":
		return "libvorbis"
	default:
		return codec
	}
}

func subtitleCodecFor(container string) string {
	switch container {
	case "mp4":
		return "mov_text"
	case "mkv":
		return "srt"
	default:
		// webm players reject soft subtitle streams; the sidecar SRT is the
		// delivery vehicle there.
		return ""
	}
}

// writeConcatList emits an ffmpeg concat demuxer file preserving clip order.
func writeConcatList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			abs = clip
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
