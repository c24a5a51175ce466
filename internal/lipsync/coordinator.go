package lipsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/project"
	"slidecast/internal/services"
)

// ClipResult describes the avatar clip produced for one scene.
type ClipResult struct {
	SceneID     int
	Path        string
	MarkersPath string
	Provider    string
	Placeholder bool
	Err         error
}

// Coordinator generates avatar clips for scenes, walking the configured
// provider list in rank order and falling back to a synthetic placeholder
// when every provider fails.
type Coordinator struct {
	cfg       config.LipSync
	render    config.Render
	providers []Provider
	runner    ffmpeg.Runner
	logger    *slog.Logger

	// sleep is swapped in tests to skip real polling delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator wires the configured HTTP providers. Pass a non-nil runner
// so placeholder clips can be rendered when providers are down.
func NewCoordinator(cfg config.LipSync, render config.Render, runner ffmpeg.Runner, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		providers = append(providers, NewHTTPProvider(pc))
	}
	return &Coordinator{
		cfg:       cfg,
		render:    render,
		providers: providers,
		runner:    runner,
		logger:    logging.WithComponent(logger, "lipsync"),
		sleep:     sleepContext,
	}
}

// WithProviders replaces the provider list. Used by tests and by callers
// that construct providers themselves.
func (c *Coordinator) WithProviders(providers ...Provider) *Coordinator {
	c.providers = providers
	return c
}

// GenerateAll produces one clip per narrated scene, at most Concurrency in
// flight. A scene failure never aborts the batch; the scene's result carries
// the error and the placeholder clip stands in for the provider output.
func (c *Coordinator) GenerateAll(ctx context.Context, scenes []project.Scene, outDir string, onDone func(ClipResult)) ([]ClipResult, error) {
	limit := c.cfg.Concurrency
	if limit <= 0 {
		limit = 2
	}

	var mu sync.Mutex
	results := make([]ClipResult, 0, len(scenes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, scene := range scenes {
		scene := scene
		g.Go(func() error {
			result := c.GenerateScene(ctx, scene, outDir)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			if onDone != nil {
				onDone(result)
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "lipsync", "batch", "avatar generation interrupted", err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].SceneID < results[j].SceneID })
	return results, nil
}

// GenerateScene runs the provider ladder for one scene. The returned result
// always carries a playable clip path unless the context was cancelled.
func (c *Coordinator) GenerateScene(ctx context.Context, scene project.Scene, outDir string) ClipResult {
	result := ClipResult{SceneID: scene.SlideID}
	clipPath := filepath.Join(outDir, fmt.Sprintf("avatar-%03d.mp4", scene.SlideID))

	req := Request{
		AvatarID:  scene.Avatar,
		AudioPath: scene.AudioPath,
		Voice:     scene.Voice,
		Emotion:   c.cfg.Emotion,
		Quality:   c.cfg.Quality,
	}

	var lastErr error
	for _, provider := range c.providers {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}
		if !provider.HealthCheck(ctx) {
			c.logger.Warn("provider unhealthy, trying next",
				logging.String(logging.FieldProvider, provider.Name()),
				logging.Int(logging.FieldSceneID, scene.SlideID))
			continue
		}
		markersPath, err := c.generateWith(ctx, provider, req, scene, clipPath)
		if err == nil {
			result.Path = clipPath
			result.MarkersPath = markersPath
			result.Provider = provider.Name()
			return result
		}
		lastErr = err
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}
		c.logger.Warn("provider failed, trying next",
			logging.String(logging.FieldProvider, provider.Name()),
			logging.Int(logging.FieldSceneID, scene.SlideID),
			logging.Error(err))
	}

	if lastErr == nil {
		lastErr = services.Wrap(services.ErrProvider, "lipsync", "generate", "no healthy provider available", nil)
	}
	if err := c.renderPlaceholder(ctx, scene, clipPath); err != nil {
		result.Err = err
		return result
	}
	c.logger.Info("placeholder clip rendered",
		logging.String(logging.FieldEventType, "lipsync_placeholder"),
		logging.Int(logging.FieldSceneID, scene.SlideID),
		logging.Error(lastErr))
	result.Path = clipPath
	result.Provider = "placeholder"
	result.Placeholder = true
	result.Err = lastErr
	return result
}

func (c *Coordinator) generateWith(ctx context.Context, provider Provider, req Request, scene project.Scene, clipPath string) (string, error) {
	submission, err := provider.Submit(ctx, req)
	if err != nil {
		return "", err
	}

	poll, err := c.awaitCompletion(ctx, provider, submission.ID)
	if err != nil {
		return "", err
	}

	downloader, ok := provider.(interface {
		Download(ctx context.Context, videoURL, dest string) error
	})
	if !ok {
		return "", services.Wrap(services.ErrProvider, provider.Name(), "download", "provider cannot deliver clips", nil)
	}
	if err := downloader.Download(ctx, poll.VideoURL, clipPath); err != nil {
		return "", err
	}

	var markersPath string
	if c.cfg.SaveMarkers {
		// Providers without timing data still get a sidecar, with every
		// array present but empty.
		payload := poll.Markers
		if payload == nil {
			payload = &MarkerPayload{}
		}
		markersPath = strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + ".markers.json"
		if err := writeMarkers(markersPath, payload); err != nil {
			c.logger.Warn("failed to persist marker sidecar",
				logging.Int(logging.FieldSceneID, scene.SlideID),
				logging.Error(err))
			markersPath = ""
		}
	}
	return markersPath, nil
}

// awaitCompletion polls with a linear backoff: start at PollInitialSeconds,
// grow one second per attempt, cap at PollMaxSeconds, give up after
// PollMaxAttempts.
func (c *Coordinator) awaitCompletion(ctx context.Context, provider Provider, id string) (Poll, error) {
	initial := c.cfg.PollInitialSeconds
	if initial <= 0 {
		initial = 2
	}
	maxDelay := c.cfg.PollMaxSeconds
	if maxDelay < initial {
		maxDelay = initial
	}
	attempts := c.cfg.PollMaxAttempts
	if attempts <= 0 {
		attempts = 60
	}

	delay := time.Duration(initial) * time.Second
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.sleep(ctx, delay); err != nil {
			return Poll{}, err
		}
		poll, err := provider.Poll(ctx, id)
		if err != nil {
			return Poll{}, err
		}
		switch poll.Status {
		case StatusCompleted:
			if poll.VideoURL == "" {
				return Poll{}, services.Wrap(services.ErrProvider, provider.Name(), "poll", "completed without a clip URL", nil)
			}
			return poll, nil
		case StatusFailed:
			msg := poll.Error
			if msg == "" {
				msg = "generation failed"
			}
			return Poll{}, services.Wrap(services.ErrProvider, provider.Name(), "poll", msg, nil)
		}
		if delay < time.Duration(maxDelay)*time.Second {
			delay += time.Second
		}
	}
	return Poll{}, services.Wrap(services.ErrProvider, provider.Name(), "poll", fmt.Sprintf("no result after %d attempts", attempts), nil)
}

// renderPlaceholder synthesizes a stand-in clip: solid color, avatar label,
// silent audio, exact scene duration at the configured resolution.
func (c *Coordinator) renderPlaceholder(ctx context.Context, scene project.Scene, clipPath string) error {
	if c.runner == nil {
		return services.Wrap(services.ErrProvider, "lipsync", "placeholder", "no encoder available for placeholder clip", nil)
	}
	duration := scene.DurationSeconds
	if duration <= 0 {
		duration = 5
	}
	label := scene.Avatar
	if label == "" {
		label = "avatar"
	}
	label = strings.ReplaceAll(label, "'", "")

	req := ffmpeg.Request{
		Inputs: []ffmpeg.Input{
			{Path: fmt.Sprintf("color=c=0x2b2d42:size=%dx%d:rate=%d", c.render.Width, c.render.Height, c.render.FPS), Format: "lavfi"},
			{Path: "anullsrc=channel_layout=stereo:sample_rate=44100", Format: "lavfi"},
		},
		FilterGraph: fmt.Sprintf("[0:v]drawtext=text='%s':fontcolor=white:fontsize=64:x=(w-text_w)/2:y=(h-text_h)/2[v];[1:a]anull[a]", label),
		VideoLabel:  "v",
		AudioLabel:  "a",
		Output: ffmpeg.OutputSpec{
			Path:            clipPath,
			VideoCodec:      "libx264",
			AudioCodec:      "aac",
			DurationSeconds: duration,
			Flags:           []string{"-shortest", "-pix_fmt", "yuv420p"},
		},
	}
	if c.render.EncoderTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.render.EncoderTimeoutSeconds)*time.Second)
		defer cancel()
	}
	if err := c.runner.Run(ctx, req, nil); err != nil {
		return services.Wrap(services.ErrComposition, "lipsync", "placeholder", fmt.Sprintf("placeholder render failed for scene %d", scene.SlideID), err)
	}
	return nil
}

func writeMarkers(path string, markers *MarkerPayload) error {
	if markers.Phonemes == nil {
		markers.Phonemes = []MarkerSpan{}
	}
	if markers.Words == nil {
		markers.Words = []MarkerSpan{}
	}
	if markers.Sentences == nil {
		markers.Sentences = []MarkerSpan{}
	}
	data, err := json.MarshalIndent(markers, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
