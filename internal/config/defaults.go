package config

const (
	defaultStagingDir           = "~/.local/share/cutroom/staging"
	defaultOutputDir            = "~/.local/share/cutroom/exports"
	defaultLogDir               = "~/.local/share/cutroom/logs"
	defaultAPIBind              = "127.0.0.1:7519"
	defaultMaxConcurrent        = 2
	defaultMaxConcurrentPerUser = 1
	defaultFrameYieldInterval   = 30
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultEncodeTimeout        = 3600
	defaultExtractTimeout       = 300
	defaultMediaRequestTimeout  = 30
	defaultMetadataTimeout      = 10
	defaultTrackCount           = 3
	defaultSnapThresholdMs      = 150
	defaultMinDurationMs        = 100
	defaultQueuePollInterval    = 2
	defaultErrorRetryInterval   = 5
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Export: Export{
			MaxConcurrent:        defaultMaxConcurrent,
			MaxConcurrentPerUser: defaultMaxConcurrentPerUser,
			FrameYieldInterval:   defaultFrameYieldInterval,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			EncodeTimeout:  defaultEncodeTimeout,
			ExtractTimeout: defaultExtractTimeout,
		},
		Media: Media{
			RequestTimeout:  defaultMediaRequestTimeout,
			MetadataTimeout: defaultMetadataTimeout,
		},
		Timeline: Timeline{
			DefaultTrackCount: defaultTrackCount,
			SnapThresholdMs:   defaultSnapThresholdMs,
			MinDurationMs:     defaultMinDurationMs,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
