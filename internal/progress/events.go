package progress

import "time"

// EventType identifies the lifecycle moment an event describes.
type EventType string

const (
	EventPhaseStarted   EventType = "phase_started"
	EventProgress       EventType = "progress"
	EventSceneCompleted EventType = "scene_completed"
	EventSceneFailed    EventType = "scene_failed"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventJobCancelled   EventType = "job_cancelled"
)

// Event is published to subscribers on every tracked transition.
type Event struct {
	Type            EventType
	JobID           string
	Phase           Phase
	OverallPercent  float64
	Message         string
	ScenesCompleted int
	ScenesFailed    int
	ScenesTotal     int
	Elapsed         time.Duration
	ETA             time.Duration
	ETAKnown        bool
	Err             error
}

// Subscriber receives pipeline events. Implementations must be fast and must
// not assume any delivery ordering across jobs. A panicking subscriber is
// isolated; it never affects orchestration.
type Subscriber interface {
	HandleEvent(Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(Event)

func (f SubscriberFunc) HandleEvent(event Event) { f(event) }
