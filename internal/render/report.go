package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"slidecast/internal/exporter"
	"slidecast/internal/queue"
)

// PhaseTiming records when a phase ran and for how long.
type PhaseTiming struct {
	Phase           string  `json:"phase"`
	StartedAt       string  `json:"started_at"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SceneReport is the per-scene outcome written into the build report.
type SceneReport struct {
	SceneID         int     `json:"scene_id"`
	Status          string  `json:"status"`
	Attempts        int     `json:"attempts,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	AvatarProvider  string  `json:"avatar_provider,omitempty"`
	Placeholder     bool    `json:"placeholder,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Report is the build report persisted next to the job outputs on every
// terminal state.
type Report struct {
	JobID       string            `json:"job_id"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	Config      queue.JobConfig   `json:"config"`
	Phases      []PhaseTiming     `json:"phases"`
	Scenes      []SceneReport     `json:"scenes"`
	Outputs     []exporter.Output `json:"outputs,omitempty"`
	CaptionPath string            `json:"caption_path,omitempty"`
	Error       string            `json:"error,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// write persists the report as indented JSON under dir and returns its path.
func (r *Report) write(dir string) (string, error) {
	r.GeneratedAt = time.Now().UTC()
	path := filepath.Join(dir, "report.json")
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// phaseClock accumulates phase timings as the pipeline advances.
type phaseClock struct {
	timings []PhaseTiming
	current string
	since   time.Time
}

func (p *phaseClock) begin(phase string) {
	p.end()
	p.current = phase
	p.since = time.Now()
}

func (p *phaseClock) end() {
	if p.current == "" {
		return
	}
	p.timings = append(p.timings, PhaseTiming{
		Phase:           p.current,
		StartedAt:       p.since.UTC().Format(time.RFC3339),
		DurationSeconds: time.Since(p.since).Seconds(),
	})
	p.current = ""
}
