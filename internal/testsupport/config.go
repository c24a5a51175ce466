package testsupport

import (
	"path/filepath"
	"testing"

	"slidecast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.WorkDir = filepath.Join(base, "work")
	cfgVal.OutputDir = filepath.Join(base, "output")
	cfgVal.LogDir = filepath.Join(base, "logs")
	cfgVal.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.LipSync.Enabled = false
	cfgVal.Captions.Enabled = true

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithLipSync enables the lip-sync phase with the given provider endpoints.
func WithLipSync(providers ...config.LipSyncProvider) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LipSync.Enabled = true
		b.cfg.LipSync.Providers = providers
	}
}

// WithCaptions toggles the subtitle generation phase.
func WithCaptions(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Captions.Enabled = enabled
	}
}

// WithFormats replaces the output format list.
func WithFormats(formats ...config.OutputFormat) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Formats = formats
	}
}

// WithMaxConcurrentJobs overrides the worker pool size.
func WithMaxConcurrentJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Render.MaxConcurrentJobs = n
	}
}
