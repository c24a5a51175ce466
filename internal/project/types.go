package project

import "strings"

// Manifest file names a project directory must or may expose.
const (
	SlidesManifest = "slides.json"
	ScenesManifest = "scenes.json"
	LayersManifest = "layers.json"
)

// Slide is one entry of the ordered slide manifest.
type Slide struct {
	ID                   int     `json:"id"`
	Image                string  `json:"image"`
	Title                string  `json:"title"`
	Text                 string  `json:"text"`
	Notes                string  `json:"notes"`
	SuggestedDurationSec float64 `json:"suggestedDurationSec"`
}

// Placement positions an avatar overlay in normalized 0..1 coordinates.
type Placement struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// SceneConfig carries per-scene narration and avatar settings.
type SceneConfig struct {
	SlideID         int       `json:"slide_id"`
	Avatar          string    `json:"avatar"`
	AvatarPlacement Placement `json:"avatarPlacement"`
	AvatarPose      string    `json:"avatarPose"`
	Voice           string    `json:"voice"`
	Audio           string    `json:"audio"`
	Markers         string    `json:"markers"`
}

// LayerStyle carries presentation attributes for a text layer.
type LayerStyle struct {
	FontSize int    `json:"fontSize"`
	Color    string `json:"color"`
}

// Layer is one overlay within a scene, positioned in normalized coordinates.
type Layer struct {
	Type    string     `json:"type"`
	Value   string     `json:"value"`
	X       float64    `json:"x"`
	Y       float64    `json:"y"`
	Style   LayerStyle `json:"style"`
	Visible bool       `json:"visible"`
}

// SceneLayers groups the overlay list for one slide.
type SceneLayers struct {
	SlideID int     `json:"slide_id"`
	Layers  []Layer `json:"layers"`
}

// Scene is the joined, render-ready view of one slide. Scenes are produced in
// strictly increasing slide id order and their count is fixed at job start.
type Scene struct {
	SlideID         int
	Image           string
	Title           string
	Text            string
	Notes           string
	DurationSeconds float64
	AudioPath       string
	MarkersPath     string
	Avatar          string
	AvatarPose      string
	Voice           string
	Placement       Placement
	Layers          []Layer
}

// HasNarration reports whether the scene carries a narration audio track.
func (s Scene) HasNarration() bool {
	return strings.TrimSpace(s.AudioPath) != ""
}

// VisibleTextLayers returns the text overlays to draw, in layer order.
func (s Scene) VisibleTextLayers() []Layer {
	var out []Layer
	for _, layer := range s.Layers {
		if layer.Visible && strings.EqualFold(layer.Type, "text") && strings.TrimSpace(layer.Value) != "" {
			out = append(out, layer)
		}
	}
	return out
}

// NarrationText returns the text used for captions, preferring the slide text
// over speaker notes.
func (s Scene) NarrationText() string {
	if text := strings.TrimSpace(s.Text); text != "" {
		return text
	}
	return strings.TrimSpace(s.Notes)
}
