package progress

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestWeightsSumTo100(t *testing.T) {
	cases := []struct {
		name             string
		lipSync          bool
		captions         bool
		wantPhases       int
		wantSceneWeights float64
	}{
		{"all phases", true, true, 5, 45},
		{"no lip sync", false, true, 4, 60},
		{"minimal", false, false, 3, math.Floor(45.0/65.0*100*100) / 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			phases := EnabledPhases(tc.lipSync, tc.captions)
			if len(phases) != tc.wantPhases {
				t.Fatalf("phase count = %d, want %d", len(phases), tc.wantPhases)
			}
			weights := Weights(phases)
			sum := 0.0
			for _, weight := range weights {
				sum += weight
			}
			if math.Abs(sum-100) > 0.0001 {
				t.Fatalf("weights sum = %v", sum)
			}
			if math.Abs(weights[PhaseSceneRendering]-tc.wantSceneWeights) > 0.01 {
				t.Fatalf("scene weight = %v, want ~%v", weights[PhaseSceneRendering], tc.wantSceneWeights)
			}
		})
	}
}

func newTestTracker(totalScenes int) (*Tracker, *time.Time) {
	tracker := NewTracker("job-1", totalScenes, true, true)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }
	tracker.startedAt = clock
	return tracker, &clock
}

func TestOverallPercentIsMonotonic(t *testing.T) {
	tracker, _ := newTestTracker(5)

	tracker.BeginPhase(PhaseInitialization)
	first := tracker.Update(100, "initialized")
	tracker.BeginPhase(PhaseLipSync)
	second := tracker.Update(50, "halfway")
	// A late, lower in-phase report must not regress the overall number.
	third := tracker.Update(20, "stale report")

	if !(second.OverallPercent > first.OverallPercent) {
		t.Fatalf("phase advance should raise percent: %v -> %v", first.OverallPercent, second.OverallPercent)
	}
	if third.OverallPercent < second.OverallPercent {
		t.Fatalf("percent regressed: %v -> %v", second.OverallPercent, third.OverallPercent)
	}
}

func TestSceneCompletionDrivesScenePhase(t *testing.T) {
	tracker, _ := newTestTracker(4)
	tracker.BeginPhase(PhaseInitialization)
	tracker.Update(100, "")
	tracker.BeginPhase(PhaseLipSync)
	tracker.Update(100, "")
	tracker.BeginPhase(PhaseSceneRendering)

	var last Metrics
	for i := 0; i < 4; i++ {
		last = tracker.SceneCompleted()
	}
	if last.ScenesCompleted != 4 {
		t.Fatalf("scenes completed = %d", last.ScenesCompleted)
	}
	// init 10 + lip_sync 25 + scene_rendering 45 all complete.
	if math.Abs(last.OverallPercent-80) > 0.01 {
		t.Fatalf("overall = %v, want 80", last.OverallPercent)
	}
}

func TestFailedScenesAdvanceWithoutCountingAsCompleted(t *testing.T) {
	tracker, _ := newTestTracker(4)
	var events []Event
	tracker.Subscribe(SubscriberFunc(func(event Event) { events = append(events, event) }))
	tracker.BeginPhase(PhaseSceneRendering)

	tracker.SceneCompleted()
	afterFailure := tracker.SceneFailed()
	last := tracker.SceneCompleted()

	if last.ScenesCompleted != 2 {
		t.Fatalf("scenes completed = %d, want 2 successes only", last.ScenesCompleted)
	}
	if last.ScenesFailed != 1 {
		t.Fatalf("scenes failed = %d, want 1", last.ScenesFailed)
	}
	// A failed scene is still finished work for pacing purposes.
	if afterFailure.OverallPercent <= 0 {
		t.Fatal("failure should still advance the percentage")
	}
	if last.OverallPercent < afterFailure.OverallPercent {
		t.Fatalf("percent regressed after failure: %v -> %v", afterFailure.OverallPercent, last.OverallPercent)
	}

	var failedEvents int
	for _, event := range events {
		if event.Type == EventSceneFailed {
			failedEvents++
			if event.ScenesCompleted != 1 {
				t.Fatalf("failure event reports %d completed, want 1", event.ScenesCompleted)
			}
			if event.ScenesFailed != 1 {
				t.Fatalf("failure event reports %d failed, want 1", event.ScenesFailed)
			}
		}
	}
	if failedEvents != 1 {
		t.Fatalf("scene_failed events = %d, want 1", failedEvents)
	}
}

func TestETAUsesMoreConservativeEstimate(t *testing.T) {
	tracker, clock := newTestTracker(10)
	tracker.BeginPhase(PhaseInitialization)
	tracker.Update(100, "")
	tracker.BeginPhase(PhaseLipSync)
	tracker.Update(100, "")
	tracker.BeginPhase(PhaseSceneRendering)

	// Two scenes done after 2 minutes: pace estimate says 8 more minutes.
	*clock = clock.Add(2 * time.Minute)
	tracker.SceneCompleted()
	metrics := tracker.SceneCompleted()

	if !metrics.ETAKnown {
		t.Fatal("ETA should be known")
	}
	pace := 8 * time.Minute
	percentBased := time.Duration(float64(2*time.Minute)/metrics.OverallPercent*100) - 2*time.Minute
	want := pace
	if percentBased > want {
		want = percentBased
	}
	if diff := metrics.ETA - want; diff < -time.Second || diff > time.Second {
		t.Fatalf("ETA = %v, want ~%v", metrics.ETA, want)
	}
}

func TestETAUnknownBeforeProgress(t *testing.T) {
	tracker, _ := newTestTracker(5)
	metrics := tracker.Snapshot()
	if metrics.ETAKnown {
		t.Fatal("ETA should be unknown with no progress")
	}
	if metrics.ETAString() != "—" {
		t.Fatalf("ETAString = %q", metrics.ETAString())
	}
}

func TestThroughputScenesPerMinute(t *testing.T) {
	tracker, clock := newTestTracker(6)
	tracker.BeginPhase(PhaseSceneRendering)
	*clock = clock.Add(90 * time.Second)
	tracker.SceneCompleted()
	tracker.SceneCompleted()
	metrics := tracker.SceneCompleted()

	if math.Abs(metrics.ScenesPerMinute-2.0) > 0.01 {
		t.Fatalf("throughput = %v scenes/min, want 2", metrics.ScenesPerMinute)
	}
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	tracker, _ := newTestTracker(1)
	var received []Event
	tracker.Subscribe(SubscriberFunc(func(Event) { panic("bad subscriber") }))
	tracker.Subscribe(SubscriberFunc(func(event Event) { received = append(received, event) }))

	tracker.BeginPhase(PhaseInitialization)
	tracker.Finish(EventJobCompleted, "done", nil)

	if len(received) != 2 {
		t.Fatalf("healthy subscriber received %d events, want 2", len(received))
	}
	if received[1].Type != EventJobCompleted || received[1].OverallPercent != 100 {
		t.Fatalf("terminal event = %+v", received[1])
	}
}

func TestFinishFailedCarriesError(t *testing.T) {
	tracker, _ := newTestTracker(1)
	var got Event
	tracker.Subscribe(SubscriberFunc(func(event Event) { got = event }))
	tracker.Finish(EventJobFailed, "final merge failed", errTest)
	if got.Type != EventJobFailed || got.Err == nil {
		t.Fatalf("event = %+v", got)
	}
}

func TestSummaryRendersSnapshot(t *testing.T) {
	tracker, _ := newTestTracker(4)
	tracker.BeginPhase(PhaseSceneRendering)
	tracker.SceneCompleted()

	summary := tracker.Snapshot().Summary()
	if !strings.Contains(summary, "1/4 scenes") {
		t.Fatalf("summary %q missing scene counts", summary)
	}
	if !strings.Contains(summary, PhaseSceneRendering.Label()) {
		t.Fatalf("summary %q missing phase label", summary)
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "test error" }
