package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExport()
	c.normalizeFFmpeg()
	c.normalizeMedia()
	c.normalizeTimeline()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CUTROOM_API_TOKEN"); ok {
			c.Paths.APIToken = value
		}
	}
	return nil
}

func (c *Config) normalizeExport() {
	if c.Export.MaxConcurrent <= 0 {
		c.Export.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Export.MaxConcurrentPerUser <= 0 {
		c.Export.MaxConcurrentPerUser = defaultMaxConcurrentPerUser
	}
	if c.Export.FrameYieldInterval <= 0 {
		c.Export.FrameYieldInterval = defaultFrameYieldInterval
	}
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	if c.FFmpeg.EncodeTimeout <= 0 {
		c.FFmpeg.EncodeTimeout = defaultEncodeTimeout
	}
	if c.FFmpeg.ExtractTimeout <= 0 {
		c.FFmpeg.ExtractTimeout = defaultExtractTimeout
	}
}

func (c *Config) normalizeMedia() {
	c.Media.ResolverBaseURL = strings.TrimRight(strings.TrimSpace(c.Media.ResolverBaseURL), "/")
	if c.Media.ResolverToken == "" {
		if value, ok := os.LookupEnv("CUTROOM_RESOLVER_TOKEN"); ok {
			c.Media.ResolverToken = value
		}
	}
	if c.Media.RequestTimeout <= 0 {
		c.Media.RequestTimeout = defaultMediaRequestTimeout
	}
	if c.Media.MetadataTimeout <= 0 {
		c.Media.MetadataTimeout = defaultMetadataTimeout
	}
}

func (c *Config) normalizeTimeline() {
	if c.Timeline.DefaultTrackCount <= 0 {
		c.Timeline.DefaultTrackCount = defaultTrackCount
	}
	if c.Timeline.SnapThresholdMs <= 0 {
		c.Timeline.SnapThresholdMs = defaultSnapThresholdMs
	}
	if c.Timeline.MinDurationMs <= 0 {
		c.Timeline.MinDurationMs = defaultMinDurationMs
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
