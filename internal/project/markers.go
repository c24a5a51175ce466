package project

import (
	"encoding/json"
	"os"

	"slidecast/internal/services"
)

// Word is one word-level timing marker from the narration synthesizer.
type Word struct {
	Word      string  `json:"word"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Sentence is one sentence-level timing marker.
type Sentence struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Markers is the timing sidecar shipped alongside a narration clip.
type Markers struct {
	Words     []Word     `json:"words"`
	Sentences []Sentence `json:"sentences"`
}

// HasSentences reports whether sentence-level timing is available.
func (m Markers) HasSentences() bool {
	return len(m.Sentences) > 0
}

// LoadMarkers reads a timing sidecar. A missing path yields empty markers so
// callers can treat sidecars as strictly optional.
func LoadMarkers(path string) (Markers, error) {
	if path == "" {
		return Markers{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Markers{}, nil
	}
	if err != nil {
		return Markers{}, services.Wrap(services.ErrValidation, "project", "markers", "sidecar unreadable", err)
	}
	var markers Markers
	if err := json.Unmarshal(data, &markers); err != nil {
		return Markers{}, services.Wrap(services.ErrValidation, "project", "markers", "sidecar malformed", err)
	}
	return markers, nil
}
