package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted when the TOML leaves a value blank.
const (
	EnvSiliconFlowAPIKey = "SILICONFLOW_API_KEY"
	EnvDeepSeekAPIKey    = "DEEPSEEK_API_KEY"
	EnvBilibiliSESSDATA  = "BILIBILI_SESSDATA"
	EnvLogLevel          = "QUICKVIEW_LOG_LEVEL"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBilibili()
	c.normalizeAcquisition()
	c.normalizeTranscription()
	c.normalizeAnalysis()
	c.normalizeBatch()
	if c.Cache.MemoryTTLMinutes <= 0 {
		c.Cache.MemoryTTLMinutes = defaultMemoryTTLMinutes
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name   string
		target *string
		def    string
	}{
		{"paths.download_dir", &c.Paths.DownloadDir, defaultDownloadDir},
		{"paths.cache_dir", &c.Paths.CacheDir, defaultCacheDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.target) == "" {
			*field.target = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.target))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.target = expanded
	}
	return nil
}

func (c *Config) normalizeBilibili() {
	c.Bilibili.SESSDATA = strings.TrimSpace(c.Bilibili.SESSDATA)
	if c.Bilibili.SESSDATA == "" {
		c.Bilibili.SESSDATA = strings.TrimSpace(os.Getenv(EnvBilibiliSESSDATA))
	}
	c.Bilibili.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Bilibili.APIBaseURL), "/")
	if c.Bilibili.APIBaseURL == "" {
		c.Bilibili.APIBaseURL = defaultBilibiliAPIBaseURL
	}
	c.Bilibili.VideoBaseURL = strings.TrimRight(strings.TrimSpace(c.Bilibili.VideoBaseURL), "/")
	if c.Bilibili.VideoBaseURL == "" {
		c.Bilibili.VideoBaseURL = defaultBilibiliVideoBaseURL
	}
	if strings.TrimSpace(c.Bilibili.UserAgent) == "" {
		c.Bilibili.UserAgent = defaultBilibiliUserAgent
	}
	if c.Bilibili.TimeoutSeconds <= 0 {
		c.Bilibili.TimeoutSeconds = defaultBilibiliTimeout
	}
}

func (c *Config) normalizeAcquisition() {
	c.Acquisition.YtDlpBinary = strings.TrimSpace(c.Acquisition.YtDlpBinary)
	if c.Acquisition.YtDlpBinary == "" {
		c.Acquisition.YtDlpBinary = defaultYtDlpBinary
	}
	c.Acquisition.FFmpegBinary = strings.TrimSpace(c.Acquisition.FFmpegBinary)
	if c.Acquisition.FFmpegBinary == "" {
		c.Acquisition.FFmpegBinary = defaultFFmpegBinary
	}
	c.Acquisition.AudioBitrate = strings.TrimSpace(c.Acquisition.AudioBitrate)
	if c.Acquisition.AudioBitrate == "" {
		c.Acquisition.AudioBitrate = defaultAudioBitrate
	}
	if c.Acquisition.SampleRate <= 0 {
		c.Acquisition.SampleRate = defaultAudioSampleRate
	}
	if c.Acquisition.TimeoutSeconds <= 0 {
		c.Acquisition.TimeoutSeconds = defaultAcquisitionTimeout
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = strings.TrimSpace(os.Getenv(EnvSiliconFlowAPIKey))
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.TimeoutSeconds < MinTranscriptionTimeoutSeconds {
		c.Transcription.TimeoutSeconds = MinTranscriptionTimeoutSeconds
	}
	if c.Transcription.RetryMaxElapsedSeconds <= 0 {
		c.Transcription.RetryMaxElapsedSeconds = defaultTranscriptionRetry
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.APIKey = strings.TrimSpace(c.Analysis.APIKey)
	if c.Analysis.APIKey == "" {
		c.Analysis.APIKey = strings.TrimSpace(os.Getenv(EnvDeepSeekAPIKey))
	}
	c.Analysis.BaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.BaseURL), "/")
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = defaultAnalysisBaseURL
	}
	c.Analysis.Model = strings.TrimSpace(c.Analysis.Model)
	if c.Analysis.Model == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
	if c.Analysis.MaxTokens <= 0 {
		c.Analysis.MaxTokens = defaultAnalysisMaxTokens
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeout
	}
}

func (c *Config) normalizeBatch() {
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = defaultWorkers
	}
	if c.Batch.AcquisitionConcurrency <= 0 {
		c.Batch.AcquisitionConcurrency = defaultStageConcurrency
	}
	if c.Batch.TranscriptionConcurrency <= 0 {
		c.Batch.TranscriptionConcurrency = defaultStageConcurrency
	}
	if c.Batch.AnalysisConcurrency <= 0 {
		c.Batch.AnalysisConcurrency = defaultStageConcurrency
	}
}

func (c *Config) normalizeLogging() {
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.Logging.Level = level
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
