package config

import (
	"fmt"
	"math"

	"quickview/internal/services"
)

// Validate ensures the configuration is usable. Every failure wraps
// services.ErrConfiguration so callers can abort before doing any work.
func (c *Config) Validate() error {
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCredentials() error {
	path, err := DefaultConfigPath()
	if err != nil {
		path = defaultConfigPath
	}
	if c.Transcription.APIKey == "" {
		return invalid(fmt.Sprintf("transcription.api_key is required. Set %s or edit %s (create with 'quickview config init')", EnvSiliconFlowAPIKey, path))
	}
	if c.Analysis.APIKey == "" {
		return invalid(fmt.Sprintf("analysis.api_key is required. Set %s or edit %s (create with 'quickview config init')", EnvDeepSeekAPIKey, path))
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if math.IsNaN(c.Analysis.Temperature) || c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		return invalid(fmt.Sprintf("analysis.temperature must be between 0 and 2, got %v", c.Analysis.Temperature))
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.PacingSeconds < 0 {
		return invalid("batch.pacing_seconds must be >= 0")
	}
	if c.Batch.Workers > 16 {
		return invalid(fmt.Sprintf("batch.workers must be at most 16, got %d", c.Batch.Workers))
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return invalid(fmt.Sprintf("logging.format must be 'console' or 'json', got %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid(fmt.Sprintf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	return nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrConfiguration, "config", "validate", message, nil)
}
