package captions

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/project"
	"slidecast/internal/services"
)

// Synthesizer turns scene narration and timing markers into SRT tracks.
type Synthesizer struct {
	limits   Limits
	perScene bool
	logger   *slog.Logger
}

func NewSynthesizer(cfg config.Captions, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{
		limits: Limits{
			MaxCharsPerLine:  cfg.MaxCharsPerLine,
			MaxLinesPerEntry: cfg.MaxLinesPerEntry,
			MinEntrySeconds:  cfg.MinEntrySeconds,
			MaxEntrySeconds:  cfg.MaxEntrySeconds,
		},
		perScene: cfg.PerScene,
		logger:   logging.WithComponent(logger, "captions"),
	}
}

// Result describes the tracks produced for one job.
type Result struct {
	TrackPath   string
	SceneTracks map[int]string
	EntryCount  int
	Violations  []Violation
}

// Generate builds the full-timeline track under outDir and, when configured,
// one track per scene. Scene durations must reflect the final rendered clips
// so cue offsets line up with the merged video.
func (s *Synthesizer) Generate(scenes []project.Scene, durations map[int]float64, outDir string) (*Result, error) {
	entries, perScene, err := s.BuildEntries(scenes, durations)
	if err != nil {
		return nil, err
	}

	trackPath := filepath.Join(outDir, "captions.srt")
	if err := WriteSRT(trackPath, entries); err != nil {
		return nil, services.Wrap(services.ErrComposition, "captions", "write", "failed to write caption track", err)
	}

	result := &Result{TrackPath: trackPath, EntryCount: len(entries)}
	if s.perScene {
		result.SceneTracks = make(map[int]string, len(perScene))
		for sceneID, sceneEntries := range perScene {
			path := filepath.Join(outDir, fmt.Sprintf("scene-%03d.srt", sceneID))
			if err := WriteSRT(path, sceneEntries); err != nil {
				return nil, services.Wrap(services.ErrComposition, "captions", "write", fmt.Sprintf("failed to write scene %d caption track", sceneID), err)
			}
			result.SceneTracks[sceneID] = path
		}
	}

	reparsed, err := ParseSRT(trackPath)
	if err != nil {
		return nil, services.Wrap(services.ErrComposition, "captions", "validate", "caption track failed to re-parse", err)
	}
	result.Violations = Validate(reparsed, s.limits)
	for _, v := range result.Violations {
		s.logger.Warn("caption entry violates limits",
			logging.Int("entry", v.Index),
			logging.String("rule", v.Rule),
			logging.String("detail", v.Detail))
	}

	s.logger.Info("caption track generated",
		logging.String(logging.FieldEventType, "captions_generated"),
		logging.Int("entries", len(entries)),
		logging.Int("violations", len(result.Violations)),
		logging.String("path", trackPath))
	return result, nil
}

// BuildEntries lays cues on the shared timeline. Scenes contribute in order;
// each scene's cues are offset by the accumulated duration of the scenes
// before it. Sentence markers drive timing when present, otherwise the scene
// narration is split evenly across its duration.
func (s *Synthesizer) BuildEntries(scenes []project.Scene, durations map[int]float64) ([]Entry, map[int][]Entry, error) {
	var all []Entry
	perScene := make(map[int][]Entry, len(scenes))
	offset := 0.0

	for _, scene := range scenes {
		duration := durations[scene.SlideID]
		if duration <= 0 {
			duration = scene.DurationSeconds
		}
		sceneEntries, err := s.sceneEntries(scene, duration, offset)
		if err != nil {
			return nil, nil, err
		}
		if len(sceneEntries) > 0 {
			perScene[scene.SlideID] = rebase(sceneEntries, offset)
			all = append(all, sceneEntries...)
		}
		offset += duration
	}

	clampSequence(all, s.limits)
	for i := range all {
		all[i].Index = i + 1
	}
	for _, entries := range perScene {
		clampSequence(entries, s.limits)
	}
	return all, perScene, nil
}

func (s *Synthesizer) sceneEntries(scene project.Scene, duration, offset float64) ([]Entry, error) {
	text := scene.NarrationText()
	if text == "" {
		return nil, nil
	}

	markers, err := project.LoadMarkers(scene.MarkersPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "captions", "markers", fmt.Sprintf("failed to load markers for scene %d", scene.SlideID), err)
	}

	var entries []Entry
	if len(markers.Sentences) > 0 {
		for _, sentence := range markers.Sentences {
			chunks := splitChunks(sentence.Text, s.limits)
			if len(chunks) == 0 {
				continue
			}
			span := (sentence.EndTime - sentence.StartTime) / float64(len(chunks))
			start := offset + sentence.StartTime
			for _, lines := range chunks {
				entries = append(entries, Entry{Start: start, End: start + span, Lines: lines})
				start += span
			}
		}
		return entries, nil
	}

	chunks := splitChunks(text, s.limits)
	if len(chunks) == 0 {
		return nil, nil
	}
	span := duration / float64(len(chunks))
	start := offset
	for _, lines := range chunks {
		entries = append(entries, Entry{Start: start, End: start + span, Lines: lines})
		start += span
	}
	return entries, nil
}

// clampSequence applies duration bounds and removes overlap. A cue never
// starts before the previous one ends and never outlives the next cue's
// start.
func clampSequence(entries []Entry, limits Limits) {
	for i := range entries {
		span := entries[i].End - entries[i].Start
		if limits.MaxEntrySeconds > 0 && span > limits.MaxEntrySeconds {
			entries[i].End = entries[i].Start + limits.MaxEntrySeconds
		} else if limits.MinEntrySeconds > 0 && span < limits.MinEntrySeconds {
			entries[i].End = entries[i].Start + limits.MinEntrySeconds
		}
		if i+1 < len(entries) && entries[i].End > entries[i+1].Start {
			entries[i].End = entries[i+1].Start
		}
	}
}

// rebase shifts entries back to scene-local time for per-scene tracks.
func rebase(entries []Entry, offset float64) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Start -= offset
		e.End -= offset
		e.Index = i + 1
		out[i] = e
	}
	return out
}
