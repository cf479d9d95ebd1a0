package config

const (
	defaultConfigPath  = "~/.config/quickview/config.toml"
	defaultDownloadDir = "~/.local/share/quickview/downloads"
	defaultCacheDir    = "~/.cache/quickview"
	defaultOutputDir   = "~/quickview/reports"
	defaultLogDir      = "~/.local/share/quickview/logs"
	defaultStateDir    = "~/.local/share/quickview"

	defaultBilibiliAPIBaseURL   = "https://api.bilibili.com"
	defaultBilibiliVideoBaseURL = "https://www.bilibili.com/video"
	defaultBilibiliUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultBilibiliTimeout      = 10

	defaultYtDlpBinary        = "yt-dlp"
	defaultFFmpegBinary       = "ffmpeg"
	defaultAudioBitrate       = "32k"
	defaultAudioSampleRate    = 16000
	defaultAcquisitionTimeout = 1800

	defaultTranscriptionBaseURL = "https://api.siliconflow.cn/v1"
	defaultTranscriptionModel   = "FunAudioLLM/SenseVoiceSmall"
	// MinTranscriptionTimeoutSeconds is the floor for the ASR request budget;
	// long videos routinely take several minutes to recognize.
	MinTranscriptionTimeoutSeconds = 300
	defaultTranscriptionRetry      = 60

	defaultAnalysisBaseURL     = "https://api.deepseek.com"
	defaultAnalysisModel       = "deepseek-chat"
	defaultAnalysisTemperature = 0.7
	defaultAnalysisMaxTokens   = 2000
	defaultAnalysisTimeout     = 120

	defaultPacingSeconds    = 3
	defaultWorkers          = 1
	defaultStageConcurrency = 1

	defaultMemoryTTLMinutes = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			CacheDir:    defaultCacheDir,
			OutputDir:   defaultOutputDir,
			LogDir:      defaultLogDir,
			StateDir:    defaultStateDir,
		},
		Bilibili: Bilibili{
			APIBaseURL:     defaultBilibiliAPIBaseURL,
			VideoBaseURL:   defaultBilibiliVideoBaseURL,
			UserAgent:      defaultBilibiliUserAgent,
			TimeoutSeconds: defaultBilibiliTimeout,
			IncludeTitle:   true,
		},
		Acquisition: Acquisition{
			YtDlpBinary:    defaultYtDlpBinary,
			FFmpegBinary:   defaultFFmpegBinary,
			AudioBitrate:   defaultAudioBitrate,
			SampleRate:     defaultAudioSampleRate,
			TimeoutSeconds: defaultAcquisitionTimeout,
		},
		Transcription: Transcription{
			BaseURL:                defaultTranscriptionBaseURL,
			Model:                  defaultTranscriptionModel,
			TimeoutSeconds:         MinTranscriptionTimeoutSeconds,
			RetryMaxElapsedSeconds: defaultTranscriptionRetry,
		},
		Analysis: Analysis{
			BaseURL:        defaultAnalysisBaseURL,
			Model:          defaultAnalysisModel,
			Temperature:    defaultAnalysisTemperature,
			MaxTokens:      defaultAnalysisMaxTokens,
			TimeoutSeconds: defaultAnalysisTimeout,
		},
		Batch: Batch{
			PacingSeconds:            defaultPacingSeconds,
			Workers:                  defaultWorkers,
			AcquisitionConcurrency:   defaultStageConcurrency,
			TranscriptionConcurrency: defaultStageConcurrency,
			AnalysisConcurrency:      defaultStageConcurrency,
		},
		Cache: Cache{
			MemoryTTLMinutes: defaultMemoryTTLMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
