package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Render contains encoder and scheduling settings for scene composition.
type Render struct {
	Width                 int    `toml:"width"`
	Height                int    `toml:"height"`
	FPS                   int    `toml:"fps"`
	QualityTier           string `toml:"quality_tier"`
	MaxConcurrentJobs     int    `toml:"max_concurrent_jobs"`
	SceneConcurrency      int    `toml:"scene_concurrency"`
	CompositionRetries    int    `toml:"composition_retries"`
	EncoderTimeoutSeconds int    `toml:"encoder_timeout_seconds"`
	FFmpegBinary          string `toml:"ffmpeg_binary"`
	FFprobeBinary         string `toml:"ffprobe_binary"`
}

// OutputFormat describes one requested final container/codec pair.
type OutputFormat struct {
	Container   string `toml:"container"`
	VideoCodec  string `toml:"video_codec"`
	AudioCodec  string `toml:"audio_codec"`
	BitrateKbps int    `toml:"bitrate_kbps"`
}

// Output configures the final merge stage.
type Output struct {
	Formats []OutputFormat `toml:"formats"`
}

// LipSyncProvider identifies one ranked external avatar provider endpoint.
type LipSyncProvider struct {
	Name   string `toml:"name"`
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// LipSync configures the avatar generation coordinator.
type LipSync struct {
	Enabled            bool              `toml:"enabled"`
	Providers          []LipSyncProvider `toml:"providers"`
	Emotion            string            `toml:"emotion"`
	Quality            string            `toml:"quality"`
	Concurrency        int               `toml:"concurrency"`
	PollInitialSeconds int               `toml:"poll_initial_seconds"`
	PollMaxSeconds     int               `toml:"poll_max_seconds"`
	PollMaxAttempts    int               `toml:"poll_max_attempts"`
	SaveMarkers        bool              `toml:"save_markers"`
}

// Captions configures subtitle synthesis.
type Captions struct {
	Enabled          bool    `toml:"enabled"`
	MaxCharsPerLine  int     `toml:"max_chars_per_line"`
	MaxLinesPerEntry int     `toml:"max_lines_per_entry"`
	MinEntrySeconds  float64 `toml:"min_entry_seconds"`
	MaxEntrySeconds  float64 `toml:"max_entry_seconds"`
	PerScene         bool    `toml:"per_scene"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Workflow contains daemon timing configuration.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Config is the root configuration document.
type Config struct {
	Paths         `toml:"paths"`
	Render        Render        `toml:"render"`
	Output        Output        `toml:"output"`
	LipSync       LipSync       `toml:"lipsync"`
	Captions      Captions      `toml:"captions"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	LogLevel      string        `toml:"log_level"`
	LogFormat     string        `toml:"log_format"`
}

// DefaultConfigPath returns the canonical config file location.
func DefaultConfigPath() string {
	return filepath.Join("~", ".config", "slidecast", "config.toml")
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. Returned config is validated and path-expanded.
func Load(path string) (*Config, string, error) {
	resolved := ExpandPath(strings.TrimSpace(path))
	if resolved == "" {
		resolved = ExpandPath(DefaultConfigPath())
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults apply when no file is present.
	default:
		return nil, resolved, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return &cfg, resolved, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	resolved := ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config already exists at %s", resolved)
	}
	return os.WriteFile(resolved, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the working directories the pipeline expects.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.WorkDir, c.OutputDir, c.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ against the current user's home directory.
func ExpandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

func (c *Config) normalize() {
	c.WorkDir = ExpandPath(c.WorkDir)
	c.OutputDir = ExpandPath(c.OutputDir)
	c.LogDir = ExpandPath(c.LogDir)
	if c.Render.FFmpegBinary == "" {
		c.Render.FFmpegBinary = "ffmpeg"
	}
	if c.Render.FFprobeBinary == "" {
		c.Render.FFprobeBinary = "ffprobe"
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = defaultFormats()
	}
}
