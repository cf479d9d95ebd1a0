// Package analysis asks the chat model for a structured verdict on a
// transcript. Results are never cached; every run re-invokes the model.
package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"quickview/internal/config"
	"quickview/internal/itemkey"
	"quickview/internal/logging"
	"quickview/internal/services"
	"quickview/internal/services/llm"
	"quickview/internal/throttle"
)

const stageName = "analysis"

// Completer issues chat completions.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
	Model() string
}

// Result is the analysis text for one item.
type Result struct {
	Key     itemkey.Key
	Summary string
	Model   string
}

// Stage runs the analysis model.
type Stage struct {
	client      Completer
	temperature float64
	maxTokens   int
	gate        *throttle.Gate
	logger      *slog.Logger
}

// Option customizes the stage.
type Option func(*Stage)

// WithGate routes model calls through a throttle gate.
func WithGate(gate *throttle.Gate) Option {
	return func(s *Stage) { s.gate = gate }
}

// New constructs the stage using the sampling settings from cfg.
func New(cfg *config.Config, client Completer, logger *slog.Logger, opts ...Option) *Stage {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	stage := &Stage{
		client:      client,
		temperature: cfg.Analysis.Temperature,
		maxTokens:   cfg.Analysis.MaxTokens,
		logger:      logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(stage)
	}
	return stage
}

// Analyze sends text to the model and returns its verdict. Failures,
// including an empty completion, wrap services.ErrAnalysis.
func (s *Stage) Analyze(ctx context.Context, text string, key itemkey.Key) (Result, error) {
	if s.client == nil {
		return Result{}, services.Wrap(services.ErrAnalysis, stageName, "analyze", "no model client configured", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, services.Wrap(services.ErrAnalysis, stageName, "analyze", "transcript is empty", nil)
	}
	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("requesting analysis", logging.Int("transcript_bytes", len(text)))

	started := time.Now()
	var completion llm.Completion
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var callErr error
		completion, callErr = s.client.Complete(ctx, llm.Request{
			System:      SystemPrompt,
			User:        UserPrompt(text),
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		})
		return callErr
	})
	if err != nil {
		return Result{}, services.Wrap(services.ErrAnalysis, stageName, "complete", "model "+s.client.Model(), err)
	}
	summary := strings.TrimSpace(completion.Content)
	if summary == "" {
		return Result{}, services.Wrap(services.ErrAnalysis, stageName, "complete", "model returned no content", nil)
	}
	model := completion.Model
	if model == "" {
		model = s.client.Model()
	}

	logger.Info("analysis complete",
		logging.String("model", model),
		logging.Int("tokens", completion.TotalTokens),
		logging.String("finish_reason", completion.FinishReason),
		logging.Duration("elapsed", time.Since(started)))
	if completion.FinishReason == "length" {
		logging.WarnWithContext(ctx, logger, "analysis truncated at max_tokens", "analysis_truncated",
			logging.Int("max_tokens", s.maxTokens),
			logging.String(logging.FieldErrorHint, "raise analysis.max_tokens in the config"),
			logging.String(logging.FieldImpact, "report contains a partial analysis"))
	}
	return Result{Key: key, Summary: summary, Model: model}, nil
}
