package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a render job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status can no longer change.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobConfig is the immutable configuration snapshot captured at submit time.
type JobConfig struct {
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	FPS             int      `json:"fps"`
	QualityTier     string   `json:"quality_tier"`
	Containers      []string `json:"containers"`
	LipSyncEnabled  bool     `json:"lipsync_enabled"`
	CaptionsEnabled bool     `json:"captions_enabled"`
}

// Job represents one end-to-end render request persisted in SQLite. The
// orchestrator is the only writer once a job leaves the queued state; status
// queries receive copies, never live references.
type Job struct {
	ID              string
	Name            string
	ProjectDir      string
	OutputDir       string
	Config          JobConfig
	Status          Status
	Phase           string
	ProgressPercent float64
	ProgressMessage string
	ErrorMessage    string
	CancelRequested bool
	ScenesTotal     int
	ScenesCompleted int
	ScenesFailed    int
	Outputs         []string
	ReportPath      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// SetProgress updates the three progress fields together. Percent never
// regresses; out-of-order updates keep the highest published value.
func (j *Job) SetProgress(phase, message string, percent float64) {
	j.Phase = phase
	j.ProgressMessage = message
	if percent > j.ProgressPercent {
		j.ProgressPercent = percent
	}
}

// SetFailed marks the job failed with a human-readable message.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.FinishedAt = &now
}

// SetCompleted marks the job completed.
func (j *Job) SetCompleted() {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.ProgressPercent = 100
	j.ProgressMessage = "Render complete"
	j.FinishedAt = &now
}

// Elapsed returns processing time so far, or total time for finished jobs.
func (j *Job) Elapsed() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}

// HealthSummary aggregates job counts per lifecycle state.
type HealthSummary struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

func marshalConfig(cfg JobConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalConfig(raw string) (JobConfig, error) {
	var cfg JobConfig
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	err := json.Unmarshal([]byte(raw), &cfg)
	return cfg, err
}

func marshalOutputs(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalOutputs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var paths []string
	err := json.Unmarshal([]byte(raw), &paths)
	return paths, err
}
