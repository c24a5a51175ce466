package compositor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/media/ffprobe"
	"slidecast/internal/project"
	"slidecast/internal/services"
)

// SceneOutcome records the result of rendering one scene clip.
type SceneOutcome struct {
	SceneID         int
	Path            string
	DurationSeconds float64
	Attempts        int
	Err             error
}

// Succeeded reports whether the scene produced a usable clip.
func (o SceneOutcome) Succeeded() bool { return o.Err == nil }

// Compositor renders per-scene clips from slide images, avatar overlays and
// narration audio.
type Compositor struct {
	cfg    config.Render
	runner ffmpeg.Runner
	logger *slog.Logger

	// probeAudio measures narration length so the clip matches it. Swapped
	// in tests.
	probeAudio func(ctx context.Context, path string) (float64, error)
}

// Option adjusts compositor construction.
type Option func(*Compositor)

// WithAudioProbe substitutes the narration duration probe. Tests use this to
// avoid spawning ffprobe.
func WithAudioProbe(probe func(ctx context.Context, path string) (float64, error)) Option {
	return func(c *Compositor) {
		if probe != nil {
			c.probeAudio = probe
		}
	}
}

func New(cfg config.Render, runner ffmpeg.Runner, logger *slog.Logger, opts ...Option) *Compositor {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Compositor{
		cfg:    cfg,
		runner: runner,
		logger: logging.WithComponent(logger, "compositor"),
	}
	c.probeAudio = func(ctx context.Context, path string) (float64, error) {
		report, err := ffprobe.Inspect(ctx, cfg.FFprobeBinary, path)
		if err != nil {
			return 0, err
		}
		return report.DurationSeconds(), nil
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildPlan resolves the render recipe for one scene. Narration length wins
// over the manifest's suggested duration so audio is never cut short.
func (c *Compositor) BuildPlan(ctx context.Context, scene project.Scene, avatarClip, outDir string) Plan {
	duration := scene.DurationSeconds
	if scene.HasNarration() {
		if measured, err := c.probeAudio(ctx, scene.AudioPath); err == nil && measured > 0 {
			duration = measured
		} else if err != nil {
			c.logger.Warn("could not measure narration, using manifest duration",
				logging.Int(logging.FieldSceneID, scene.SlideID),
				logging.Error(err))
		}
	}
	return Plan{
		Scene:           scene,
		AvatarClip:      avatarClip,
		OutputPath:      filepath.Join(outDir, fmt.Sprintf("scene-%03d.mp4", scene.SlideID)),
		DurationSeconds: duration,
	}
}

// RenderScene runs one plan through the encoder, retrying transient failures
// up to the configured limit. Progress callbacks carry scene-local 0-100.
func (c *Compositor) RenderScene(ctx context.Context, plan Plan, onProgress func(percent float64)) SceneOutcome {
	outcome := SceneOutcome{SceneID: plan.Scene.SlideID, Path: plan.OutputPath, DurationSeconds: plan.DurationSeconds}
	attempts := c.cfg.CompositionRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	req := plan.Request(c.cfg)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.Attempts = attempt - 1
			outcome.Err = services.Wrap(services.ErrCancelled, "compositor", "render", fmt.Sprintf("scene %d interrupted", plan.Scene.SlideID), err)
			return outcome
		}
		outcome.Attempts = attempt
		lastErr = c.renderOnce(ctx, req, onProgress)
		if lastErr == nil {
			if onProgress != nil {
				onProgress(100)
			}
			c.logger.Info("scene rendered",
				logging.String(logging.FieldEventType, "scene_rendered"),
				logging.Int(logging.FieldSceneID, plan.Scene.SlideID),
				logging.Int("attempt", attempt),
				logging.String("path", plan.OutputPath))
			return outcome
		}
		c.logger.Warn("scene render attempt failed",
			logging.Int(logging.FieldSceneID, plan.Scene.SlideID),
			logging.Int("attempt", attempt),
			logging.Error(lastErr))
	}
	outcome.Err = services.Wrap(services.ErrComposition, "compositor", "render",
		fmt.Sprintf("scene %d failed after %d attempts", plan.Scene.SlideID, attempts), lastErr)
	return outcome
}

func (c *Compositor) renderOnce(ctx context.Context, req ffmpeg.Request, onProgress func(float64)) error {
	if c.cfg.EncoderTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.EncoderTimeoutSeconds)*time.Second)
		defer cancel()
	}
	err := c.runner.Run(ctx, req, func(update ffmpeg.ProgressUpdate) {
		if onProgress != nil && update.Percent >= 0 {
			onProgress(update.Percent)
		}
	})
	if err != nil {
		return err
	}
	info, statErr := os.Stat(req.Output.Path)
	if statErr != nil {
		return fmt.Errorf("output missing after encode: %w", statErr)
	}
	if info.Size() == 0 {
		return fmt.Errorf("encoder produced an empty file at %s", req.Output.Path)
	}
	return nil
}

// RenderAll renders every scene with bounded parallelism. Scene failures are
// collected, not propagated; outcomes come back in ascending scene order.
// shouldStop is polled before each scene so cancellation takes effect at
// scene boundaries.
func (c *Compositor) RenderAll(ctx context.Context, scenes []project.Scene, avatarClips map[int]string, outDir string, shouldStop func() bool, onScene func(SceneOutcome)) ([]SceneOutcome, error) {
	limit := c.cfg.SceneConcurrency
	if limit <= 0 {
		limit = 2
	}

	var mu sync.Mutex
	outcomes := make([]SceneOutcome, 0, len(scenes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, scene := range scenes {
		scene := scene
		if shouldStop != nil && shouldStop() {
			break
		}
		g.Go(func() error {
			if shouldStop != nil && shouldStop() {
				return nil
			}
			plan := c.BuildPlan(ctx, scene, avatarClips[scene.SlideID], outDir)
			outcome := c.RenderScene(ctx, plan, nil)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			if onScene != nil {
				onScene(outcome)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].SceneID < outcomes[j].SceneID })
	return outcomes, nil
}
