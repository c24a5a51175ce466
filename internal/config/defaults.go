package config

const (
	defaultWorkDir            = "~/.local/share/slidecast/work"
	defaultOutputDir          = "~/.local/share/slidecast/output"
	defaultLogDir             = "~/.local/share/slidecast/logs"
	defaultAPIBind            = "127.0.0.1:7519"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultWidth              = 1920
	defaultHeight             = 1080
	defaultFPS                = 30
	defaultQualityTier        = "standard"
	defaultMaxConcurrentJobs  = 2
	defaultSceneConcurrency   = 2
	defaultCompositionRetries = 2
	defaultEncoderTimeout     = 600
	defaultLipSyncConcurrency = 2
	defaultPollInitialSeconds = 2
	defaultPollMaxSeconds     = 10
	defaultPollMaxAttempts    = 60
	defaultLipSyncEmotion     = "neutral"
	defaultLipSyncQuality     = "standard"
	defaultMaxCharsPerLine    = 42
	defaultMaxLinesPerEntry   = 2
	defaultMinEntrySeconds    = 1.0
	defaultMaxEntrySeconds    = 7.0
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 5
	defaultNtfyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Render: Render{
			Width:                 defaultWidth,
			Height:                defaultHeight,
			FPS:                   defaultFPS,
			QualityTier:           defaultQualityTier,
			MaxConcurrentJobs:     defaultMaxConcurrentJobs,
			SceneConcurrency:      defaultSceneConcurrency,
			CompositionRetries:    defaultCompositionRetries,
			EncoderTimeoutSeconds: defaultEncoderTimeout,
			FFmpegBinary:          "ffmpeg",
			FFprobeBinary:         "ffprobe",
		},
		Output: Output{
			Formats: defaultFormats(),
		},
		LipSync: LipSync{
			Enabled:            false,
			Emotion:            defaultLipSyncEmotion,
			Quality:            defaultLipSyncQuality,
			Concurrency:        defaultLipSyncConcurrency,
			PollInitialSeconds: defaultPollInitialSeconds,
			PollMaxSeconds:     defaultPollMaxSeconds,
			PollMaxAttempts:    defaultPollMaxAttempts,
			SaveMarkers:        true,
		},
		Captions: Captions{
			Enabled:          true,
			MaxCharsPerLine:  defaultMaxCharsPerLine,
			MaxLinesPerEntry: defaultMaxLinesPerEntry,
			MinEntrySeconds:  defaultMinEntrySeconds,
			MaxEntrySeconds:  defaultMaxEntrySeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultFormats() []OutputFormat {
	return []OutputFormat{
		{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", BitrateKbps: 4000},
	}
}
