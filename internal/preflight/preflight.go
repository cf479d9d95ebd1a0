package preflight

import (
	"context"

	"quickview/internal/config"
	"quickview/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional checks do not make the overall report fail.
	Optional bool
}

// Options select which network checks RunAll performs.
type Options struct {
	// Offline skips every check that contacts a remote service.
	Offline bool
}

// RunAll executes every preflight check for cfg.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		results = append(results, fromDependency(status))
	}

	results = append(results,
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	)

	results = append(results,
		CheckCredential("SiliconFlow API key", cfg.Transcription.APIKey, config.EnvSiliconFlowAPIKey, false),
		CheckCredential("DeepSeek API key", cfg.Analysis.APIKey, config.EnvDeepSeekAPIKey, false),
		CheckCredential("Bilibili SESSDATA", cfg.Bilibili.SESSDATA, config.EnvBilibiliSESSDATA, true),
	)

	if opts.Offline {
		return results
	}
	if cfg.Transcription.APIKey != "" {
		results = append(results, CheckSiliconFlow(ctx, cfg.Transcription.BaseURL, cfg.Transcription.APIKey))
	}
	if cfg.Analysis.APIKey != "" {
		results = append(results, CheckLLM(ctx, "DeepSeek API", cfg.Analysis))
	}
	if cfg.Bilibili.SESSDATA != "" {
		results = append(results, CheckBilibiliSession(ctx, cfg.Bilibili))
	}
	return results
}

// Failed reports whether any non-optional result failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

func fromDependency(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
	switch {
	case status.Available:
		result.Detail = status.Path
	case status.Detail != "":
		result.Detail = status.Detail + " (" + status.Description + ")"
	default:
		result.Detail = status.Description
	}
	return result
}
