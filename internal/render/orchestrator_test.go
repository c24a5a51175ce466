package render

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"slidecast/internal/compositor"
	"slidecast/internal/config"
	"slidecast/internal/exporter"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/media/ffprobe"
	"slidecast/internal/progress"
	"slidecast/internal/queue"
	"slidecast/internal/services"
	"slidecast/internal/testsupport"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, req ffmpeg.Request, onProgress func(ffmpeg.ProgressUpdate)) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if onProgress != nil {
		onProgress(ffmpeg.ProgressUpdate{Percent: 100, Done: true})
	}
	return os.WriteFile(req.Output.Path, []byte("media"), 0o644)
}

func newTestOrchestrator(t *testing.T, runner ffmpeg.Runner) (*Orchestrator, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	o := NewOrchestrator(cfg, store, nil, WithRunner(runner))
	o.compositor = compositor.New(cfg.Render, runner, nil,
		compositor.WithAudioProbe(func(ctx context.Context, path string) (float64, error) { return 4, nil }))
	o.exporter = exporter.New(cfg.Render, cfg.Output.Formats, runner, nil,
		exporter.WithProbe(func(ctx context.Context, path string) (ffprobe.Report, error) {
			return ffprobe.Report{Format: ffprobe.Format{Duration: "8.0", Size: "5"}}, nil
		}))
	return o, store, cfg
}

func TestSubmitRejectsInvalidProject(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeRunner{})
	_, err := o.Submit(context.Background(), t.TempDir(), "broken")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitEnqueuesJob(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeRunner{})
	projectDir := testsupport.WriteProject(t, testsupport.WithSlides(3), testsupport.WithLayers())

	job, err := o.Submit(context.Background(), projectDir, "treinamento")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ScenesTotal != 3 {
		t.Errorf("scenes total = %d, want 3", job.ScenesTotal)
	}

	stored, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.Status != queue.StatusQueued {
		t.Fatalf("expected a queued job, got %+v", stored)
	}
	if !stored.Config.CaptionsEnabled {
		t.Error("config snapshot should record captions enabled")
	}
}

func TestProcessCompletesJob(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeRunner{})
	projectDir := testsupport.WriteProject(t, testsupport.WithSlides(2))

	var events []progress.Event
	var mu sync.Mutex
	o.Subscribe(progress.SubscriberFunc(func(event progress.Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}))

	submitted, err := o.Submit(context.Background(), projectDir, "curso nr-10")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := store.ClaimNext(context.Background())
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", job, err)
	}
	if job.ID != submitted.ID {
		t.Fatalf("claimed wrong job")
	}

	o.process(context.Background(), job)

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (error: %s)", final.Status, final.ErrorMessage)
	}
	if final.ProgressPercent != 100 {
		t.Errorf("progress = %v, want 100", final.ProgressPercent)
	}
	if final.ScenesCompleted != 2 || final.ScenesFailed != 0 {
		t.Errorf("scene counts = %d/%d", final.ScenesCompleted, final.ScenesFailed)
	}
	if len(final.Outputs) == 0 {
		t.Fatal("expected at least one output")
	}
	for _, output := range final.Outputs {
		if _, statErr := os.Stat(output); statErr != nil {
			t.Errorf("output missing: %v", statErr)
		}
	}

	if final.ReportPath == "" {
		t.Fatal("expected a build report")
	}
	data, err := os.ReadFile(final.ReportPath)
	if err != nil {
		t.Fatal(err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if report.Status != string(queue.StatusCompleted) {
		t.Errorf("report status = %s", report.Status)
	}
	if len(report.Phases) == 0 || len(report.Scenes) != 2 {
		t.Errorf("report missing phases or scenes: %+v", report)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawCompleted bool
	for _, event := range events {
		if event.Type == progress.EventJobCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Error("expected a job_completed event")
	}
}

func TestProcessFailsWhenEverySceneFails(t *testing.T) {
	runner := &fakeRunner{err: errors.New("encoder exploded")}
	o, store, _ := newTestOrchestrator(t, runner)
	projectDir := testsupport.WriteProject(t, testsupport.WithSlides(2))

	if _, err := o.Submit(context.Background(), projectDir, "broken render"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := store.ClaimNext(context.Background())
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	o.process(context.Background(), job)

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Error("expected an error message")
	}
	if final.ReportPath == "" {
		t.Error("failed jobs still get a build report")
	}
}

type selectiveRunner struct {
	fakeRunner
	failSubstring string
}

func (s *selectiveRunner) Run(ctx context.Context, req ffmpeg.Request, onProgress func(ffmpeg.ProgressUpdate)) error {
	if strings.Contains(req.Output.Path, s.failSubstring) {
		return errors.New("encoder exploded")
	}
	return s.fakeRunner.Run(ctx, req, onProgress)
}

func TestFailedScenesExcludedFromCompletedCount(t *testing.T) {
	runner := &selectiveRunner{failSubstring: "scene-002.mp4"}
	o, store, _ := newTestOrchestrator(t, runner)
	projectDir := testsupport.WriteProject(t, testsupport.WithSlides(3))

	var mu sync.Mutex
	var events []progress.Event
	o.Subscribe(progress.SubscriberFunc(func(event progress.Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}))

	if _, err := o.Submit(context.Background(), projectDir, "partial render"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := store.ClaimNext(context.Background())
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	o.process(context.Background(), job)

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (error: %s)", final.Status, final.ErrorMessage)
	}
	if final.ScenesCompleted != 2 || final.ScenesFailed != 1 {
		t.Fatalf("scene counts = %d completed / %d failed, want 2/1", final.ScenesCompleted, final.ScenesFailed)
	}

	mu.Lock()
	defer mu.Unlock()
	var completedEvents, failedEvents int
	for _, event := range events {
		switch event.Type {
		case progress.EventSceneCompleted:
			completedEvents++
			if event.ScenesCompleted > 2 {
				t.Fatalf("event reports %d completed with only 2 successes", event.ScenesCompleted)
			}
		case progress.EventSceneFailed:
			failedEvents++
			if event.ScenesFailed != 1 {
				t.Fatalf("failure event reports %d failed, want 1", event.ScenesFailed)
			}
		}
	}
	if completedEvents != 2 {
		t.Errorf("scene_completed events = %d, want 2", completedEvents)
	}
	if failedEvents != 1 {
		t.Errorf("scene_failed events = %d, want 1", failedEvents)
	}
}

func TestCancellationAtPhaseBoundary(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeRunner{})
	projectDir := testsupport.WriteProject(t, testsupport.WithSlides(2))

	if _, err := o.Submit(context.Background(), projectDir, "cancelled job"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := store.ClaimNext(context.Background())
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if ok, err := store.RequestCancel(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("RequestCancel: ok=%v err=%v", ok, err)
	}

	o.process(context.Background(), job)

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
}

func TestWorkerPoolDrainsQueue(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeRunner{})
	projectDir := testsupport.WriteProject(t, testsupport.WithSlides(1))

	job, err := o.Submit(context.Background(), projectDir, "worker job")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		current, err := store.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if current.Status.IsTerminal() {
			if current.Status != queue.StatusCompleted {
				t.Fatalf("status = %s (error: %s)", current.Status, current.ErrorMessage)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("job did not finish before the deadline")
}
