package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownContainers = map[string]struct{}{
	"mp4":  {},
	"mkv":  {},
	"webm": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateLipSync(); err != nil {
		return err
	}
	if err := c.validateCaptions(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.New("render.width and render.height must be positive")
	}
	if c.Render.FPS <= 0 {
		return errors.New("render.fps must be positive")
	}
	if c.Render.MaxConcurrentJobs <= 0 {
		return errors.New("render.max_concurrent_jobs must be positive")
	}
	if c.Render.SceneConcurrency <= 0 {
		return errors.New("render.scene_concurrency must be positive")
	}
	if c.Render.CompositionRetries < 0 {
		return errors.New("render.composition_retries must not be negative")
	}
	if c.Render.EncoderTimeoutSeconds <= 0 {
		return errors.New("render.encoder_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if len(c.Output.Formats) == 0 {
		return errors.New("output.formats must request at least one format")
	}
	for i, format := range c.Output.Formats {
		container := strings.ToLower(strings.TrimSpace(format.Container))
		if _, ok := knownContainers[container]; !ok {
			return fmt.Errorf("output.formats[%d].container %q is not supported (mp4, mkv, webm)", i, format.Container)
		}
		if strings.TrimSpace(format.VideoCodec) == "" {
			return fmt.Errorf("output.formats[%d].video_codec must be set", i)
		}
		if format.BitrateKbps < 0 {
			return fmt.Errorf("output.formats[%d].bitrate_kbps must not be negative", i)
		}
	}
	return nil
}

func (c *Config) validateLipSync() error {
	if !c.LipSync.Enabled {
		return nil
	}
	if len(c.LipSync.Providers) == 0 {
		return errors.New("lipsync.providers must list at least one provider when lipsync.enabled is true")
	}
	for i, provider := range c.LipSync.Providers {
		if strings.TrimSpace(provider.URL) == "" {
			return fmt.Errorf("lipsync.providers[%d].url must be set", i)
		}
	}
	if c.LipSync.PollInitialSeconds <= 0 {
		return errors.New("lipsync.poll_initial_seconds must be positive")
	}
	if c.LipSync.PollMaxSeconds < c.LipSync.PollInitialSeconds {
		return errors.New("lipsync.poll_max_seconds must not be below lipsync.poll_initial_seconds")
	}
	if c.LipSync.PollMaxAttempts <= 0 {
		return errors.New("lipsync.poll_max_attempts must be positive")
	}
	if c.LipSync.Concurrency <= 0 {
		return errors.New("lipsync.concurrency must be positive")
	}
	return nil
}

func (c *Config) validateCaptions() error {
	if !c.Captions.Enabled {
		return nil
	}
	if c.Captions.MaxCharsPerLine <= 0 {
		return errors.New("captions.max_chars_per_line must be positive")
	}
	if c.Captions.MaxLinesPerEntry <= 0 {
		return errors.New("captions.max_lines_per_entry must be positive")
	}
	if c.Captions.MinEntrySeconds <= 0 {
		return errors.New("captions.min_entry_seconds must be positive")
	}
	if c.Captions.MaxEntrySeconds < c.Captions.MinEntrySeconds {
		return errors.New("captions.max_entry_seconds must not be below captions.min_entry_seconds")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}
