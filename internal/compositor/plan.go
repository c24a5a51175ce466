package compositor

import (
	"fmt"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/project"
)

// Plan is the fully resolved recipe for rendering one scene clip.
type Plan struct {
	Scene project.Scene
	// AvatarClip is the lip-synced overlay video; empty when the scene has
	// no avatar or lip-sync is disabled.
	AvatarClip      string
	OutputPath      string
	DurationSeconds float64
}

// Request lowers the plan into a single encoder invocation. Input layout:
// slide image first, then the avatar clip when present, then narration audio.
func (p Plan) Request(cfg config.Render) ffmpeg.Request {
	inputs := []ffmpeg.Input{{Path: p.Scene.Image, Loop: true, DurationSeconds: p.DurationSeconds}}

	avatarIndex := -1
	if p.AvatarClip != "" {
		avatarIndex = len(inputs)
		inputs = append(inputs, ffmpeg.Input{Path: p.AvatarClip})
	}
	audioIndex := -1
	if p.Scene.HasNarration() {
		audioIndex = len(inputs)
		inputs = append(inputs, ffmpeg.Input{Path: p.Scene.AudioPath})
	}

	var graph []string
	graph = append(graph, fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[base]",
		cfg.Width, cfg.Height, cfg.Width, cfg.Height))
	current := "base"

	if avatarIndex >= 0 {
		placement := p.Scene.Placement
		scale := placement.Scale
		if scale <= 0 {
			scale = 0.25
		}
		graph = append(graph, fmt.Sprintf("[%d:v]scale=%d:-2[avatar]", avatarIndex, int(float64(cfg.Width)*scale)))
		graph = append(graph, fmt.Sprintf("[%s][avatar]overlay=%d:%d[ov]",
			current, int(placement.X*float64(cfg.Width)), int(placement.Y*float64(cfg.Height))))
		current = "ov"
	}

	for i, layer := range p.Scene.VisibleTextLayers() {
		next := fmt.Sprintf("txt%d", i)
		graph = append(graph, fmt.Sprintf("[%s]%s[%s]", current, drawText(layer, cfg), next))
		current = next
	}

	if audioIndex >= 0 {
		// apad fills with silence when narration runs short; the output -t
		// trims when it runs long.
		graph = append(graph, fmt.Sprintf("[%d:a]apad[aud]", audioIndex))
	} else {
		graph = append(graph, "anullsrc=channel_layout=stereo:sample_rate=44100[aud]")
	}

	return ffmpeg.Request{
		Inputs:      inputs,
		FilterGraph: strings.Join(graph, ";"),
		VideoLabel:  current,
		AudioLabel:  "aud",
		Output: ffmpeg.OutputSpec{
			Path:            p.OutputPath,
			VideoCodec:      "libx264",
			AudioCodec:      "aac",
			Width:           cfg.Width,
			Height:          cfg.Height,
			FPS:             cfg.FPS,
			DurationSeconds: p.DurationSeconds,
			Flags:           []string{"-pix_fmt", "yuv420p", "-preset", presetFor(cfg.QualityTier)},
		},
	}
}

func drawText(layer project.Layer, cfg config.Render) string {
	size := layer.Style.FontSize
	if size <= 0 {
		size = 48
	}
	color := layer.Style.Color
	if color == "" {
		color = "white"
	}
	return fmt.Sprintf("drawtext=text='%s':fontcolor=%s:fontsize=%d:x=%d:y=%d",
		escapeDrawText(layer.Value), color, size,
		int(layer.X*float64(cfg.Width)), int(layer.Y*float64(cfg.Height)))
}

// escapeDrawText neutralizes the characters the drawtext filter treats as
// syntax inside a quoted argument.
func escapeDrawText(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(text)
}

func presetFor(tier string) string {
	switch strings.ToLower(tier) {
	case "draft":
		return "ultrafast"
	case "high":
		return "slow"
	default:
		return "medium"
	}
}
