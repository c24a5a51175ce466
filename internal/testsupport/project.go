package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"slidecast/internal/project"
)

// ProjectOption customizes the fixture project WriteProject creates.
type ProjectOption func(*projectBuilder)

type projectBuilder struct {
	slideCount int
	narration  bool
	layers     bool
}

// WithSlides sets the number of slides in the fixture project.
func WithSlides(n int) ProjectOption {
	return func(b *projectBuilder) { b.slideCount = n }
}

// WithNarration adds narration audio files plus scene configuration.
func WithNarration() ProjectOption {
	return func(b *projectBuilder) { b.narration = true }
}

// WithLayers adds a visible text layer per slide.
func WithLayers() ProjectOption {
	return func(b *projectBuilder) { b.layers = true }
}

// WriteProject materializes a loadable project directory under a temp dir
// and returns its path.
func WriteProject(t testing.TB, opts ...ProjectOption) string {
	t.Helper()

	builder := &projectBuilder{slideCount: 2}
	for _, opt := range opts {
		opt(builder)
	}

	dir := t.TempDir()
	slides := make([]project.Slide, 0, builder.slideCount)
	configs := make([]project.SceneConfig, 0, builder.slideCount)
	layerGroups := make([]project.SceneLayers, 0, builder.slideCount)

	for i := 1; i <= builder.slideCount; i++ {
		image := fmt.Sprintf("slide-%d.png", i)
		WriteFile(t, filepath.Join(dir, image), 64)
		slides = append(slides, project.Slide{
			ID:                   i,
			Image:                image,
			Title:                fmt.Sprintf("Slide %d", i),
			Text:                 fmt.Sprintf("Conteúdo do slide %d sobre segurança no trabalho", i),
			SuggestedDurationSec: 4,
		})
		if builder.narration {
			audio := fmt.Sprintf("narration-%d.mp3", i)
			WriteFile(t, filepath.Join(dir, audio), 64)
			configs = append(configs, project.SceneConfig{
				SlideID:         i,
				Avatar:          "",
				Voice:           "pt-BR-ana",
				Audio:           audio,
				AvatarPlacement: project.Placement{X: 0.7, Y: 0.6, Scale: 0.25},
			})
		}
		if builder.layers {
			layerGroups = append(layerGroups, project.SceneLayers{
				SlideID: i,
				Layers: []project.Layer{
					{Type: "text", Value: fmt.Sprintf("Título %d", i), X: 0.1, Y: 0.1, Visible: true},
				},
			})
		}
	}

	writeJSON(t, filepath.Join(dir, project.SlidesManifest), slides)
	if builder.narration {
		writeJSON(t, filepath.Join(dir, project.ScenesManifest), configs)
	}
	if builder.layers {
		writeJSON(t, filepath.Join(dir, project.LayersManifest), layerGroups)
	}
	return dir
}

func writeJSON(t testing.TB, path string, value any) {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
