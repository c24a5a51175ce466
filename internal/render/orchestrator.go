package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/captions"
	"slidecast/internal/compositor"
	"slidecast/internal/config"
	"slidecast/internal/exporter"
	"slidecast/internal/lipsync"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/progress"
	"slidecast/internal/project"
	"slidecast/internal/queue"
	"slidecast/internal/services"
)

// Orchestrator drains the job queue with a fixed pool of workers, running
// each claimed job through the sequential phase pipeline.
type Orchestrator struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	lipsync    *lipsync.Coordinator
	compositor *compositor.Compositor
	captions   *captions.Synthesizer
	exporter   *exporter.Exporter

	mu          sync.Mutex
	subscribers []progress.Subscriber
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// Option adjusts orchestrator construction.
type Option func(*options)

type options struct {
	runner ffmpeg.Runner
}

// WithRunner substitutes the encoder implementation. Tests use this to avoid
// spawning ffmpeg.
func WithRunner(runner ffmpeg.Runner) Option {
	return func(o *options) {
		if runner != nil {
			o.runner = runner
		}
	}
}

// NewOrchestrator wires the pipeline services from configuration.
func NewOrchestrator(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	settings := options{runner: ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.Render.FFmpegBinary))}
	for _, opt := range opts {
		opt(&settings)
	}
	runner := settings.runner
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		logger:     logging.WithComponent(logger, "render"),
		lipsync:    lipsync.NewCoordinator(cfg.LipSync, cfg.Render, runner, logger),
		compositor: compositor.New(cfg.Render, runner, logger),
		captions:   captions.NewSynthesizer(cfg.Captions, logger),
		exporter:   exporter.New(cfg.Render, cfg.Output.Formats, runner, logger),
	}
}

// Subscribe registers an event subscriber attached to every job the
// orchestrator processes from now on.
func (o *Orchestrator) Subscribe(subscriber progress.Subscriber) {
	if subscriber == nil {
		return
	}
	o.mu.Lock()
	o.subscribers = append(o.subscribers, subscriber)
	o.mu.Unlock()
}

// Start launches the worker pool. Safe to call once; Stop reverses it.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return fmt.Errorf("orchestrator already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.started = true

	workers := o.cfg.Render.MaxConcurrentJobs
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go func(id int) {
			defer o.wg.Done()
			o.workerLoop(ctx, id)
		}(i)
	}
	o.logger.Info("orchestrator started", logging.Int("workers", workers))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to reach a safe
// checkpoint.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	started := o.started
	o.started = false
	o.cancel = nil
	o.mu.Unlock()
	if !started {
		return
	}
	cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) workerLoop(ctx context.Context, workerID int) {
	poll := time.Duration(o.cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	retry := time.Duration(o.cfg.Workflow.ErrorRetryInterval) * time.Second
	if retry <= 0 {
		retry = poll
	}

	for {
		if ctx.Err() != nil {
			return
		}
		job, err := o.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Error("queue claim failed", logging.Int("worker", workerID), logging.Error(err))
			if !sleepFor(ctx, retry) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepFor(ctx, poll) {
				return
			}
			continue
		}
		o.process(ctx, job)
	}
}

// Submit validates the project directory and enqueues a new job. The config
// snapshot is taken now; later daemon config changes never affect queued work.
func (o *Orchestrator) Submit(ctx context.Context, projectDir, name string) (*queue.Job, error) {
	scenes, err := project.Load(projectDir)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = filepath.Base(projectDir)
	}
	id := uuid.NewString()
	containers := make([]string, 0, len(o.cfg.Output.Formats))
	for _, format := range o.cfg.Output.Formats {
		containers = append(containers, format.Container)
	}

	job := &queue.Job{
		ID:         id,
		Name:       name,
		ProjectDir: projectDir,
		OutputDir:  filepath.Join(o.cfg.OutputDir, id),
		Config: queue.JobConfig{
			Width:           o.cfg.Render.Width,
			Height:          o.cfg.Render.Height,
			FPS:             o.cfg.Render.FPS,
			QualityTier:     o.cfg.Render.QualityTier,
			Containers:      containers,
			LipSyncEnabled:  o.cfg.LipSync.Enabled,
			CaptionsEnabled: o.cfg.Captions.Enabled,
		},
		ScenesTotal: len(scenes),
	}
	if err := o.store.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	o.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("scenes", len(scenes)))
	return job, nil
}

// Status returns a job snapshot.
func (o *Orchestrator) Status(ctx context.Context, id string) (*queue.Job, error) {
	job, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "render", "status", fmt.Sprintf("unknown job %s", id), nil)
	}
	return job, nil
}

// Cancel requests cooperative cancellation.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	ok, err := o.store.RequestCancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return services.Wrap(services.ErrNotFound, "render", "cancel", fmt.Sprintf("job %s is unknown or already finished", id), nil)
	}
	return nil
}

// List returns job snapshots, optionally filtered by status.
func (o *Orchestrator) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	return o.store.List(ctx, statuses...)
}

// pipeline carries the per-job state threaded through the phases.
type pipeline struct {
	job     *queue.Job
	scenes  []project.Scene
	tracker *progress.Tracker
	clock   phaseClock
	report  *Report

	workDir     string
	avatarClips map[int]string
	outcomes    []compositor.SceneOutcome
	captionPath string
}

func (o *Orchestrator) process(ctx context.Context, job *queue.Job) {
	logger := o.logger.With(logging.String(logging.FieldJobID, job.ID))
	logger.Info("job claimed", logging.String(logging.FieldEventType, "job_started"))

	p := &pipeline{
		job: job,
		report: &Report{
			JobID:  job.ID,
			Name:   job.Name,
			Config: job.Config,
		},
		workDir:     filepath.Join(o.cfg.WorkDir, job.ID),
		avatarClips: map[int]string{},
	}

	err := o.runPhases(ctx, p, logger)
	p.clock.end()
	p.report.Phases = p.clock.timings

	switch {
	case err == nil:
		job.SetCompleted()
		p.report.Status = string(queue.StatusCompleted)
	case isCancellation(err) || ctx.Err() != nil:
		now := time.Now().UTC()
		job.Status = queue.StatusCancelled
		job.ProgressMessage = "Cancelled"
		job.FinishedAt = &now
		p.report.Status = string(queue.StatusCancelled)
	default:
		job.SetFailed(services.Message(err))
		p.report.Status = string(queue.StatusFailed)
		p.report.Error = services.Message(err)
	}

	if reportPath, reportErr := p.report.write(job.OutputDir); reportErr == nil {
		job.ReportPath = reportPath
	} else {
		logger.Warn("failed to write build report", logging.Error(reportErr))
	}

	if updateErr := o.store.Update(context.WithoutCancel(ctx), job); updateErr != nil {
		logger.Error("failed to persist terminal job state", logging.Error(updateErr))
	}

	if p.tracker != nil {
		switch job.Status {
		case queue.StatusCompleted:
			p.tracker.Finish(progress.EventJobCompleted, "Render complete", nil)
		case queue.StatusCancelled:
			p.tracker.Finish(progress.EventJobCancelled, "Cancelled", nil)
		default:
			p.tracker.Finish(progress.EventJobFailed, job.ErrorMessage, err)
		}
	}
	summary := ""
	if p.tracker != nil {
		summary = p.tracker.Snapshot().Summary()
	}
	logger.Info("job finished",
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("status", string(job.Status)),
		logging.String("progress", summary),
		logging.Duration("elapsed", job.Elapsed()))
}

func (o *Orchestrator) runPhases(ctx context.Context, p *pipeline, logger *slog.Logger) error {
	if err := o.initialize(ctx, p, logger); err != nil {
		return err
	}
	if err := o.checkpoint(ctx, p); err != nil {
		return err
	}
	if p.job.Config.LipSyncEnabled {
		if err := o.lipSyncPhase(ctx, p, logger); err != nil {
			return err
		}
		if err := o.checkpoint(ctx, p); err != nil {
			return err
		}
	}
	if err := o.renderScenes(ctx, p, logger); err != nil {
		return err
	}
	if err := o.checkpoint(ctx, p); err != nil {
		return err
	}
	if p.job.Config.CaptionsEnabled {
		if err := o.captionsPhase(ctx, p, logger); err != nil {
			return err
		}
		if err := o.checkpoint(ctx, p); err != nil {
			return err
		}
	}
	return o.finalMerge(ctx, p, logger)
}

// checkpoint enforces cooperative cancellation at phase boundaries.
func (o *Orchestrator) checkpoint(ctx context.Context, p *pipeline) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, "render", "pipeline", "shutdown requested", err)
	}
	flagged, err := o.store.CancelRequested(ctx, p.job.ID)
	if err != nil {
		return fmt.Errorf("read cancel flag: %w", err)
	}
	if flagged {
		return services.Wrap(services.ErrCancelled, "render", "pipeline", "cancellation requested", nil)
	}
	return nil
}

func (o *Orchestrator) initialize(ctx context.Context, p *pipeline, logger *slog.Logger) error {
	job := p.job
	scenes, err := project.Load(job.ProjectDir)
	if err != nil {
		return err
	}
	p.scenes = scenes
	job.ScenesTotal = len(scenes)

	p.tracker = progress.NewTracker(job.ID, len(scenes), job.Config.LipSyncEnabled, job.Config.CaptionsEnabled)
	o.mu.Lock()
	for _, subscriber := range o.subscribers {
		p.tracker.Subscribe(subscriber)
	}
	o.mu.Unlock()
	p.tracker.Subscribe(o.persistSubscriber(job.ID))

	p.clock.begin(string(progress.PhaseInitialization))
	p.tracker.BeginPhase(progress.PhaseInitialization)

	for _, dir := range []string{p.workDir, job.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	p.tracker.Update(100, "Project validated")
	logger.Info("project loaded", logging.Int("scenes", len(scenes)))
	return nil
}

func (o *Orchestrator) lipSyncPhase(ctx context.Context, p *pipeline, logger *slog.Logger) error {
	p.clock.begin(string(progress.PhaseLipSync))
	p.tracker.BeginPhase(progress.PhaseLipSync)

	var narrated []project.Scene
	for _, scene := range p.scenes {
		if scene.HasNarration() && scene.Avatar != "" {
			narrated = append(narrated, scene)
		}
	}
	if len(narrated) == 0 {
		p.tracker.Update(100, "No avatar scenes")
		return nil
	}

	var done int
	var mu sync.Mutex
	results, err := o.lipsync.GenerateAll(ctx, narrated, p.workDir, func(result lipsync.ClipResult) {
		mu.Lock()
		done++
		pct := float64(done) / float64(len(narrated)) * 100
		mu.Unlock()
		p.tracker.Update(pct, fmt.Sprintf("Avatar clip %d/%d", done, len(narrated)))
	})
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Path != "" {
			p.avatarClips[result.SceneID] = result.Path
		}
		p.reportAvatar(result)
	}
	return nil
}

func (p *pipeline) reportAvatar(result lipsync.ClipResult) {
	for i := range p.report.Scenes {
		if p.report.Scenes[i].SceneID == result.SceneID {
			p.report.Scenes[i].AvatarProvider = result.Provider
			p.report.Scenes[i].Placeholder = result.Placeholder
			return
		}
	}
	p.report.Scenes = append(p.report.Scenes, SceneReport{
		SceneID:        result.SceneID,
		AvatarProvider: result.Provider,
		Placeholder:    result.Placeholder,
	})
}

func (o *Orchestrator) renderScenes(ctx context.Context, p *pipeline, logger *slog.Logger) error {
	job := p.job
	p.clock.begin(string(progress.PhaseSceneRendering))
	p.tracker.BeginPhase(progress.PhaseSceneRendering)

	shouldStop := func() bool {
		if ctx.Err() != nil {
			return true
		}
		flagged, err := o.store.CancelRequested(ctx, job.ID)
		return err == nil && flagged
	}
	outcomes, err := o.compositor.RenderAll(ctx, p.scenes, p.avatarClips, p.workDir, shouldStop, func(outcome compositor.SceneOutcome) {
		if outcome.Succeeded() {
			p.tracker.SceneCompleted()
		} else {
			p.tracker.SceneFailed()
		}
	})
	if err != nil {
		return err
	}
	if stopped := shouldStop(); stopped && len(outcomes) < len(p.scenes) {
		return services.Wrap(services.ErrCancelled, "render", "scenes", "cancellation requested", nil)
	}

	p.outcomes = outcomes
	var failed int
	for _, outcome := range outcomes {
		entry := SceneReport{
			SceneID:         outcome.SceneID,
			Status:          "rendered",
			Attempts:        outcome.Attempts,
			DurationSeconds: outcome.DurationSeconds,
		}
		if outcome.Err != nil {
			failed++
			entry.Status = "failed"
			entry.Error = services.Message(outcome.Err)
		}
		p.mergeSceneReport(entry)
	}
	job.ScenesCompleted = len(outcomes) - failed
	job.ScenesFailed = failed

	if failed == len(outcomes) {
		return services.Wrap(services.ErrComposition, "render", "scenes", "every scene failed to render", nil)
	}
	if failed > 0 {
		logger.Warn("continuing with partial scene set",
			logging.Int("failed", failed),
			logging.Int("total", len(outcomes)))
	}
	return nil
}

func (p *pipeline) mergeSceneReport(entry SceneReport) {
	for i := range p.report.Scenes {
		if p.report.Scenes[i].SceneID == entry.SceneID {
			entry.AvatarProvider = p.report.Scenes[i].AvatarProvider
			entry.Placeholder = p.report.Scenes[i].Placeholder
			p.report.Scenes[i] = entry
			return
		}
	}
	p.report.Scenes = append(p.report.Scenes, entry)
}

func (o *Orchestrator) captionsPhase(ctx context.Context, p *pipeline, logger *slog.Logger) error {
	p.clock.begin(string(progress.PhaseSubtitleGeneration))
	p.tracker.BeginPhase(progress.PhaseSubtitleGeneration)

	durations := make(map[int]float64, len(p.outcomes))
	rendered := make(map[int]bool, len(p.outcomes))
	for _, outcome := range p.outcomes {
		if outcome.Succeeded() {
			durations[outcome.SceneID] = outcome.DurationSeconds
			rendered[outcome.SceneID] = true
		}
	}
	var scenes []project.Scene
	for _, scene := range p.scenes {
		if rendered[scene.SlideID] {
			scenes = append(scenes, scene)
		}
	}

	result, err := o.captions.Generate(scenes, durations, p.workDir)
	if err != nil {
		return err
	}
	p.captionPath = result.TrackPath
	p.tracker.Update(100, fmt.Sprintf("%d caption entries", result.EntryCount))
	return nil
}

func (o *Orchestrator) finalMerge(ctx context.Context, p *pipeline, logger *slog.Logger) error {
	job := p.job
	p.clock.begin(string(progress.PhaseFinalMerge))
	p.tracker.BeginPhase(progress.PhaseFinalMerge)

	var clips []string
	for _, outcome := range p.outcomes {
		if outcome.Succeeded() {
			clips = append(clips, outcome.Path)
		}
	}

	result, err := o.exporter.Export(ctx, clips, p.captionPath, job.OutputDir, baseName(job.Name), func(pct float64) {
		p.tracker.Update(pct, "Merging final output")
	})
	if err != nil {
		return err
	}

	job.Outputs = nil
	for _, output := range result.Outputs {
		job.Outputs = append(job.Outputs, output.Path)
	}
	p.report.Outputs = result.Outputs
	p.report.CaptionPath = result.CaptionPath
	return nil
}

func (o *Orchestrator) persistSubscriber(jobID string) progress.Subscriber {
	return progress.SubscriberFunc(func(event progress.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.store.UpdateProgress(ctx, jobID, string(event.Phase), event.Message, event.OverallPercent); err != nil {
			o.logger.Warn("failed to persist progress", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		}
	})
}

func isCancellation(err error) bool {
	return errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled)
}

func baseName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, name)
	if cleaned == "" {
		return "final"
	}
	return cleaned
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
