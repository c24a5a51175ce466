package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"slidecast/internal/services"
)

const defaultSceneSeconds = 5.0

// Load reads a project directory and joins its manifests into the ordered
// scene list. The slide manifest is required; scene configuration and layers
// are merged when present. Referenced audio and marker files must exist.
func Load(dir string) ([]Scene, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrValidation, "project", "load", "project directory not set", nil)
	}

	slides, err := readSlides(filepath.Join(dir, SlidesManifest))
	if err != nil {
		return nil, err
	}
	configs, err := readSceneConfigs(filepath.Join(dir, ScenesManifest))
	if err != nil {
		return nil, err
	}
	layers, err := readSceneLayers(filepath.Join(dir, LayersManifest))
	if err != nil {
		return nil, err
	}

	scenes := make([]Scene, 0, len(slides))
	for _, slide := range slides {
		scene := Scene{
			SlideID:         slide.ID,
			Image:           resolvePath(dir, slide.Image),
			Title:           slide.Title,
			Text:            slide.Text,
			Notes:           slide.Notes,
			DurationSeconds: slide.SuggestedDurationSec,
		}
		if scene.DurationSeconds <= 0 {
			scene.DurationSeconds = defaultSceneSeconds
		}
		if cfg, ok := configs[slide.ID]; ok {
			scene.Avatar = resolveOptional(dir, cfg.Avatar)
			scene.AvatarPose = cfg.AvatarPose
			scene.Voice = cfg.Voice
			scene.Placement = cfg.AvatarPlacement
			scene.AudioPath = resolveOptional(dir, cfg.Audio)
			scene.MarkersPath = resolveOptional(dir, cfg.Markers)
		}
		if group, ok := layers[slide.ID]; ok {
			scene.Layers = group.Layers
		}
		if err := checkSceneFiles(scene); err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}

	sort.Slice(scenes, func(i, j int) bool { return scenes[i].SlideID < scenes[j].SlideID })
	for i := 1; i < len(scenes); i++ {
		if scenes[i].SlideID == scenes[i-1].SlideID {
			return nil, services.Wrap(services.ErrValidation, "project", "load",
				fmt.Sprintf("duplicate slide id %d", scenes[i].SlideID), nil)
		}
	}
	return scenes, nil
}

func readSlides(path string) ([]Slide, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "project", "load",
			fmt.Sprintf("slide manifest missing at %s", path), err)
	}
	var slides []Slide
	if err := json.Unmarshal(data, &slides); err != nil {
		return nil, services.Wrap(services.ErrValidation, "project", "load", "slide manifest malformed", err)
	}
	if len(slides) == 0 {
		return nil, services.Wrap(services.ErrValidation, "project", "load", "slide manifest is empty", nil)
	}
	for _, slide := range slides {
		if strings.TrimSpace(slide.Image) == "" {
			return nil, services.Wrap(services.ErrValidation, "project", "load",
				fmt.Sprintf("slide %d has no image", slide.ID), nil)
		}
	}
	return slides, nil
}

func readSceneConfigs(path string) (map[int]SceneConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[int]SceneConfig{}, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "project", "load", "scene configuration unreadable", err)
	}
	var configs []SceneConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, services.Wrap(services.ErrValidation, "project", "load", "scene configuration malformed", err)
	}
	byID := make(map[int]SceneConfig, len(configs))
	for _, cfg := range configs {
		byID[cfg.SlideID] = cfg
	}
	return byID, nil
}

func readSceneLayers(path string) (map[int]SceneLayers, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[int]SceneLayers{}, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "project", "load", "layer list unreadable", err)
	}
	var groups []SceneLayers
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, services.Wrap(services.ErrValidation, "project", "load", "layer list malformed", err)
	}
	byID := make(map[int]SceneLayers, len(groups))
	for _, group := range groups {
		byID[group.SlideID] = group
	}
	return byID, nil
}

func checkSceneFiles(scene Scene) error {
	required := []string{scene.Image}
	if scene.AudioPath != "" {
		required = append(required, scene.AudioPath)
	}
	if scene.MarkersPath != "" {
		required = append(required, scene.MarkersPath)
	}
	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			return services.Wrap(services.ErrValidation, "project", "load",
				fmt.Sprintf("slide %d references missing file %s", scene.SlideID, path), err)
		}
	}
	return nil
}

func resolvePath(dir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func resolveOptional(dir, path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return resolvePath(dir, path)
}
