package progress

// Phase is one of the sequential stages a render job passes through.
type Phase string

const (
	PhaseInitialization     Phase = "initialization"
	PhaseLipSync            Phase = "lip_sync"
	PhaseSceneRendering     Phase = "scene_rendering"
	PhaseSubtitleGeneration Phase = "subtitle_generation"
	PhaseFinalMerge         Phase = "final_merge"
)

// Fixed relative weights summing to 100 when every phase is enabled.
var baseWeights = map[Phase]float64{
	PhaseInitialization:     10,
	PhaseLipSync:            25,
	PhaseSceneRendering:     45,
	PhaseSubtitleGeneration: 10,
	PhaseFinalMerge:         10,
}

// EnabledPhases returns the ordered phase list for a job's feature toggles.
func EnabledPhases(lipSync, captions bool) []Phase {
	phases := []Phase{PhaseInitialization}
	if lipSync {
		phases = append(phases, PhaseLipSync)
	}
	phases = append(phases, PhaseSceneRendering)
	if captions {
		phases = append(phases, PhaseSubtitleGeneration)
	}
	return append(phases, PhaseFinalMerge)
}

// Weights returns per-phase weights for the enabled phases, renormalized so
// they still sum to 100 when optional phases are disabled.
func Weights(phases []Phase) map[Phase]float64 {
	total := 0.0
	for _, phase := range phases {
		total += baseWeights[phase]
	}
	weights := make(map[Phase]float64, len(phases))
	if total <= 0 {
		return weights
	}
	for _, phase := range phases {
		weights[phase] = baseWeights[phase] / total * 100
	}
	return weights
}

// Label renders a phase for human-facing progress messages.
func (p Phase) Label() string {
	switch p {
	case PhaseInitialization:
		return "Initialization"
	case PhaseLipSync:
		return "Lip sync"
	case PhaseSceneRendering:
		return "Scene rendering"
	case PhaseSubtitleGeneration:
		return "Subtitle generation"
	case PhaseFinalMerge:
		return "Final merge"
	default:
		return string(p)
	}
}
