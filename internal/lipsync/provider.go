package lipsync

import "context"

// Request carries everything a provider needs to animate one scene's avatar.
type Request struct {
	AvatarID  string
	PhotoPath string
	AudioPath string
	Voice     string
	Emotion   string
	Quality   string
}

// Submission acknowledges an accepted generation request.
type Submission struct {
	ID     string
	Status string
}

// Poll is one status observation for a submitted request.
type Poll struct {
	Status   string
	VideoURL string
	Error    string
	Markers  *MarkerPayload
}

// MarkerPayload is the timing data some providers return with a finished
// clip. Arrays stay non-nil so the persisted sidecar always has every key.
type MarkerPayload struct {
	Phonemes  []MarkerSpan `json:"phonemes"`
	Words     []MarkerSpan `json:"words"`
	Sentences []MarkerSpan `json:"sentences"`
}

// MarkerSpan is one timed unit within a marker payload.
type MarkerSpan struct {
	Text      string  `json:"text"`
	Word      string  `json:"word,omitempty"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Provider states reported by Poll.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Provider is one avatar generation backend. Implementations must be safe
// for concurrent use.
type Provider interface {
	Name() string
	Submit(ctx context.Context, req Request) (Submission, error)
	Poll(ctx context.Context, id string) (Poll, error)
	HealthCheck(ctx context.Context) bool
}
