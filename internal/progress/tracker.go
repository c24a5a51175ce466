package progress

import (
	"fmt"
	"sync"
	"time"
)

// Metrics is an immutable snapshot of one job's progress.
type Metrics struct {
	Phase           Phase
	OverallPercent  float64
	Elapsed         time.Duration
	ETA             time.Duration
	ETAKnown        bool
	ScenesCompleted int
	ScenesFailed    int
	ScenesTotal     int
	ScenesPerMinute float64
}

// ETAString renders the estimate, or an em dash when unknown.
func (m Metrics) ETAString() string {
	if !m.ETAKnown {
		return "—"
	}
	return m.ETA.Round(time.Second).String()
}

// Summary renders a one-line human-readable report of the snapshot.
func (m Metrics) Summary() string {
	line := fmt.Sprintf("%s %.1f%% (%d/%d scenes, elapsed %s, eta %s",
		m.Phase.Label(), m.OverallPercent, m.ScenesCompleted, m.ScenesTotal,
		m.Elapsed.Round(time.Second), m.ETAString())
	if m.ScenesPerMinute > 0 {
		line += fmt.Sprintf(", %.1f scenes/min", m.ScenesPerMinute)
	}
	return line + ")"
}

// Tracker derives phase-weighted completion and ETA for a single job. It is
// safe for concurrent use, never blocks on subscribers, and estimation
// failures degrade to "unknown" instead of propagating.
type Tracker struct {
	mu sync.Mutex

	jobID   string
	phases  []Phase
	weights map[Phase]float64
	now     func() time.Time

	current      Phase
	phasePercent float64
	overall      float64

	startedAt       time.Time
	sceneRenderFrom time.Time
	scenesTotal     int
	scenesCompleted int
	scenesFailed    int

	subscribers []Subscriber
}

// NewTracker builds a tracker for a job with the given feature toggles.
func NewTracker(jobID string, scenesTotal int, lipSync, captions bool) *Tracker {
	phases := EnabledPhases(lipSync, captions)
	return &Tracker{
		jobID:       jobID,
		phases:      phases,
		weights:     Weights(phases),
		now:         time.Now,
		startedAt:   time.Now(),
		scenesTotal: scenesTotal,
	}
}

// Subscribe registers an event subscriber.
func (t *Tracker) Subscribe(subscriber Subscriber) {
	if subscriber == nil {
		return
	}
	t.mu.Lock()
	t.subscribers = append(t.subscribers, subscriber)
	t.mu.Unlock()
}

// BeginPhase marks a phase transition and publishes a phase_started event.
func (t *Tracker) BeginPhase(phase Phase) Metrics {
	t.mu.Lock()
	t.current = phase
	t.phasePercent = 0
	if phase == PhaseSceneRendering && t.sceneRenderFrom.IsZero() {
		t.sceneRenderFrom = t.now()
	}
	t.recompute()
	metrics := t.snapshotLocked()
	subs := t.subscribersLocked()
	t.mu.Unlock()

	t.publish(subs, Event{
		Type:            EventPhaseStarted,
		JobID:           t.jobID,
		Phase:           phase,
		OverallPercent:  metrics.OverallPercent,
		Message:         phase.Label() + " started",
		ScenesCompleted: metrics.ScenesCompleted,
		ScenesTotal:     metrics.ScenesTotal,
		Elapsed:         metrics.Elapsed,
		ETA:             metrics.ETA,
		ETAKnown:        metrics.ETAKnown,
	})
	return metrics
}

// Update reports progress within the current phase (0–100).
func (t *Tracker) Update(percent float64, message string) Metrics {
	t.mu.Lock()
	if percent > t.phasePercent {
		t.phasePercent = min(percent, 100)
	}
	t.recompute()
	metrics := t.snapshotLocked()
	subs := t.subscribersLocked()
	t.mu.Unlock()

	t.publish(subs, Event{
		Type:            EventProgress,
		JobID:           t.jobID,
		Phase:           metrics.Phase,
		OverallPercent:  metrics.OverallPercent,
		Message:         message,
		ScenesCompleted: metrics.ScenesCompleted,
		ScenesTotal:     metrics.ScenesTotal,
		Elapsed:         metrics.Elapsed,
		ETA:             metrics.ETA,
		ETAKnown:        metrics.ETAKnown,
	})
	return metrics
}

// SceneCompleted records one finished scene. The published percentage tracks
// the count of completed scenes, not their identity, so parallel workers
// finishing out of order never regress the number.
func (t *Tracker) SceneCompleted() Metrics {
	t.mu.Lock()
	t.scenesCompleted++
	t.advanceScenesLocked()
	metrics := t.snapshotLocked()
	subs := t.subscribersLocked()
	t.mu.Unlock()

	t.publish(subs, Event{
		Type:            EventSceneCompleted,
		JobID:           t.jobID,
		Phase:           metrics.Phase,
		OverallPercent:  metrics.OverallPercent,
		Message:         fmt.Sprintf("Scene %d/%d complete", metrics.ScenesCompleted, metrics.ScenesTotal),
		ScenesCompleted: metrics.ScenesCompleted,
		ScenesFailed:    metrics.ScenesFailed,
		ScenesTotal:     metrics.ScenesTotal,
		Elapsed:         metrics.Elapsed,
		ETA:             metrics.ETA,
		ETAKnown:        metrics.ETAKnown,
	})
	return metrics
}

// SceneFailed records one scene that finished without a usable clip. The
// phase percentage still advances so overall progress keeps moving, but the
// completed count only ever reflects successes.
func (t *Tracker) SceneFailed() Metrics {
	t.mu.Lock()
	t.scenesFailed++
	t.advanceScenesLocked()
	metrics := t.snapshotLocked()
	subs := t.subscribersLocked()
	t.mu.Unlock()

	t.publish(subs, Event{
		Type:            EventSceneFailed,
		JobID:           t.jobID,
		Phase:           metrics.Phase,
		OverallPercent:  metrics.OverallPercent,
		Message:         fmt.Sprintf("Scene failed (%d of %d so far)", metrics.ScenesFailed, metrics.ScenesTotal),
		ScenesCompleted: metrics.ScenesCompleted,
		ScenesFailed:    metrics.ScenesFailed,
		ScenesTotal:     metrics.ScenesTotal,
		Elapsed:         metrics.Elapsed,
		ETA:             metrics.ETA,
		ETAKnown:        metrics.ETAKnown,
	})
	return metrics
}

// advanceScenesLocked folds the finished-scene count, successes and failures
// alike, into the phase percentage. Caller holds the lock.
func (t *Tracker) advanceScenesLocked() {
	if t.scenesTotal > 0 {
		done := float64(t.scenesCompleted+t.scenesFailed) / float64(t.scenesTotal) * 100
		if done > t.phasePercent {
			t.phasePercent = done
		}
	}
	t.recompute()
}

// Finish publishes the terminal event for the job.
func (t *Tracker) Finish(eventType EventType, message string, err error) {
	t.mu.Lock()
	if eventType == EventJobCompleted {
		t.overall = 100
	}
	metrics := t.snapshotLocked()
	subs := t.subscribersLocked()
	t.mu.Unlock()

	t.publish(subs, Event{
		Type:            eventType,
		JobID:           t.jobID,
		Phase:           metrics.Phase,
		OverallPercent:  metrics.OverallPercent,
		Message:         message,
		ScenesCompleted: metrics.ScenesCompleted,
		ScenesFailed:    metrics.ScenesFailed,
		ScenesTotal:     metrics.ScenesTotal,
		Elapsed:         metrics.Elapsed,
		Err:             err,
	})
}

// Snapshot returns current metrics without publishing.
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// recompute folds the phase position into the monotonic overall percentage.
// Caller holds the lock.
func (t *Tracker) recompute() {
	completed := 0.0
	for _, phase := range t.phases {
		if phase == t.current {
			break
		}
		completed += t.weights[phase]
	}
	value := completed + t.weights[t.current]*t.phasePercent/100
	if value > t.overall {
		t.overall = min(value, 100)
	}
}

func (t *Tracker) snapshotLocked() Metrics {
	elapsed := t.now().Sub(t.startedAt)
	metrics := Metrics{
		Phase:           t.current,
		OverallPercent:  t.overall,
		Elapsed:         elapsed,
		ScenesCompleted: t.scenesCompleted,
		ScenesFailed:    t.scenesFailed,
		ScenesTotal:     t.scenesTotal,
	}

	if finished := t.scenesCompleted + t.scenesFailed; finished > 0 && !t.sceneRenderFrom.IsZero() {
		perMinute := float64(finished) / t.now().Sub(t.sceneRenderFrom).Minutes()
		if perMinute > 0 {
			metrics.ScenesPerMinute = perMinute
		}
	}

	metrics.ETA, metrics.ETAKnown = t.estimateLocked(elapsed)
	return metrics
}

// estimateLocked derives the remaining-time estimate two ways and keeps the
// more conservative (larger) value.
func (t *Tracker) estimateLocked(elapsed time.Duration) (time.Duration, bool) {
	var best time.Duration
	known := false

	if t.overall > 0 && elapsed > 0 {
		projected := time.Duration(float64(elapsed)/t.overall*100) - elapsed
		if projected >= 0 {
			best = projected
			known = true
		}
	}

	if finished := t.scenesCompleted + t.scenesFailed; finished > 0 && !t.sceneRenderFrom.IsZero() {
		perScene := t.now().Sub(t.sceneRenderFrom) / time.Duration(finished)
		remaining := time.Duration(t.scenesTotal-finished) * perScene
		if remaining >= 0 && remaining > best {
			best = remaining
			known = true
		}
	}

	return best, known
}

func (t *Tracker) subscribersLocked() []Subscriber {
	return append([]Subscriber(nil), t.subscribers...)
}

func (t *Tracker) publish(subscribers []Subscriber, event Event) {
	for _, subscriber := range subscribers {
		func() {
			defer func() { _ = recover() }()
			subscriber.HandleEvent(event)
		}()
	}
}
