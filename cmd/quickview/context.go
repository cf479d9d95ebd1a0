package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"quickview/internal/acquisition"
	"quickview/internal/analysis"
	"quickview/internal/batch"
	"quickview/internal/cache"
	"quickview/internal/config"
	"quickview/internal/history"
	"quickview/internal/itemkey"
	"quickview/internal/logging"
	"quickview/internal/pipeline"
	"quickview/internal/services/bilibili"
	"quickview/internal/services/llm"
	"quickview/internal/services/siliconflow"
	"quickview/internal/services/ytdlp"
	"quickview/internal/throttle"
	"quickview/internal/transcription"
)

// errReported signals that the command already printed why it failed.
var errReported = errors.New("failure already reported")

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	closers []func() error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerFor() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			logger, _ = logging.New(logging.Options{Level: "info", Format: "console"})
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *commandContext) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}

func (c *commandContext) cacheStore() *cache.Store {
	cfg := c.config
	return cache.New(cfg.Paths.CacheDir, time.Duration(cfg.Cache.MemoryTTLMinutes)*time.Minute, c.loggerFor())
}

func (c *commandContext) acquisitionStage(gate *throttle.Gate) *acquisition.Stage {
	cfg := c.config
	fetcher := ytdlp.NewService(ytdlp.Config{
		YtDlpBinary:  cfg.Acquisition.YtDlpBinary,
		FFmpegBinary: cfg.Acquisition.FFmpegBinary,
		AudioBitrate: cfg.Acquisition.AudioBitrate,
		SampleRate:   cfg.Acquisition.SampleRate,
	})
	return acquisition.New(cfg, fetcher, c.loggerFor(), acquisition.WithGate(gate))
}

func (c *commandContext) bilibiliClient() *bilibili.Client {
	cfg := c.config
	client := bilibili.NewClient(bilibili.Config{
		APIBaseURL: cfg.Bilibili.APIBaseURL,
		SESSDATA:   cfg.Bilibili.SESSDATA,
		UserAgent:  cfg.Bilibili.UserAgent,
		Timeout:    time.Duration(cfg.Bilibili.TimeoutSeconds) * time.Second,
	})
	c.onClose(client.Close)
	return client
}

// openHistory returns nil when the database cannot be opened; history is
// best effort.
func (c *commandContext) openHistory(ctx context.Context) *history.Store {
	store, err := history.Open(c.config)
	if err != nil {
		logging.WarnWithContext(ctx, c.loggerFor(), "history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete "+c.config.HistoryPath()+" if it is corrupt"),
			logging.String(logging.FieldImpact, "this run will not appear in 'quickview history'"))
		return nil
	}
	c.onClose(store.Close)
	return store
}

// newGates builds per-service throttles. Spacing between requests only
// applies to parallel batches; sequential runs are paced by the orchestrator.
func newGates(cfg *config.Config, workers int) throttle.Set {
	var interval time.Duration
	if workers > 1 {
		interval = time.Duration(cfg.Batch.PacingSeconds * float64(time.Second))
	}
	return throttle.Set{
		Acquisition:   throttle.NewGate("acquisition", cfg.Batch.AcquisitionConcurrency, interval),
		Transcription: throttle.NewGate("transcription", cfg.Batch.TranscriptionConcurrency, 0),
		Analysis:      throttle.NewGate("analysis", cfg.Batch.AnalysisConcurrency, 0),
	}
}

type runSettings struct {
	workers  int
	source   string
	opts     pipeline.Options
	onChange func(itemkey.Key, pipeline.State)
	progress func(batch.ItemResult)
}

// newOrchestrator wires every stage for a run.
func (c *commandContext) newOrchestrator(ctx context.Context, settings runSettings) *batch.Orchestrator {
	cfg := c.config
	logger := c.loggerFor()
	gates := newGates(cfg, settings.workers)

	recognizer := siliconflow.NewClient(siliconflow.Config{
		APIKey:                 cfg.Transcription.APIKey,
		BaseURL:                cfg.Transcription.BaseURL,
		Model:                  cfg.Transcription.Model,
		TimeoutSeconds:         cfg.Transcription.TimeoutSeconds,
		RetryMaxElapsedSeconds: cfg.Transcription.RetryMaxElapsedSeconds,
	})
	completer := llm.NewClient(llm.Config{
		APIKey:         cfg.Analysis.APIKey,
		BaseURL:        cfg.Analysis.BaseURL,
		Model:          cfg.Analysis.Model,
		TimeoutSeconds: cfg.Analysis.TimeoutSeconds,
	})

	runnerOpts := []pipeline.Option{pipeline.WithTransitionHook(settings.onChange)}
	if cfg.Bilibili.IncludeTitle {
		runnerOpts = append(runnerOpts, pipeline.WithTitleLookup(c.bilibiliClient()))
	}
	runner := pipeline.NewRunner(
		c.acquisitionStage(gates.Acquisition),
		transcription.New(c.cacheStore(), recognizer, logger, transcription.WithGate(gates.Transcription)),
		analysis.New(cfg, completer, logger, analysis.WithGate(gates.Analysis)),
		pipeline.NewReportWriter(cfg.Paths.OutputDir),
		logger,
		runnerOpts...,
	)

	opts := []batch.Option{
		batch.WithWorkers(settings.workers),
		batch.WithSource(settings.source),
		batch.WithPipelineOptions(settings.opts),
		batch.WithProgress(settings.progress),
	}
	if store := c.openHistory(ctx); store != nil {
		opts = append(opts, batch.WithRecorder(store))
	}
	return batch.New(runner, logger, opts...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func pipelineOptions(forceRefresh, noCache bool) pipeline.Options {
	return pipeline.Options{ForceRefresh: forceRefresh, UseCache: !noCache}
}

func failureCount(failed, total int) error {
	return fmt.Errorf("%w: %d of %d items failed", errReported, failed, total)
}
