// Package pipeline runs one item through acquisition, transcription and
// analysis, then persists the combined report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quickview/internal/acquisition"
	"quickview/internal/analysis"
	"quickview/internal/itemkey"
	"quickview/internal/logging"
	"quickview/internal/services"
	"quickview/internal/transcription"
)

// State is a position in the per-item state machine.
type State string

// Pipeline states in the order they are entered.
const (
	StateAcquiring    State = "acquiring"
	StateTranscribing State = "transcribing"
	StateAnalyzing    State = "analyzing"
	StateAssembling   State = "assembling"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Options control cache behaviour for one run.
type Options struct {
	// ForceRefresh refetches audio and skips the transcript cache.
	ForceRefresh bool
	// UseCache allows cached transcripts to be served.
	UseCache bool
}

// DefaultOptions reads caches and does not refetch.
func DefaultOptions() Options { return Options{UseCache: true} }

// Artifact is the outcome of a successful run.
type Artifact struct {
	Key         itemkey.Key
	Title       string
	Transcript  string
	CharCount   int
	Analysis    string
	Model       string
	FromCache   bool
	GeneratedAt time.Time
	// ReportPath is empty when the transcript was empty or the report
	// could not be written.
	ReportPath string
	// Empty marks a run whose transcript had no text; analysis was skipped.
	Empty bool
}

// StageError reports the stage at which a run failed.
type StageError struct {
	Key   itemkey.Key
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed while %s: %v", e.Key, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or "" when err carries no
// StageError.
func FailedStage(err error) State {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// Acquirer produces local audio for a key.
type Acquirer interface {
	Acquire(ctx context.Context, key itemkey.Key, forceRefresh bool) (acquisition.MediaHandle, error)
}

// Transcriber turns local audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, media acquisition.MediaHandle, key itemkey.Key, useCache bool) (transcription.Result, error)
}

// Analyzer produces the verdict for a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, text string, key itemkey.Key) (analysis.Result, error)
}

// TitleLookup resolves a display title for a key.
type TitleLookup interface {
	Title(ctx context.Context, bvid string) (string, error)
}

// ReportSink persists an artifact and returns where it went.
type ReportSink interface {
	Write(artifact Artifact) (string, error)
}

// Runner drives the per-item state machine.
type Runner struct {
	acquirer    Acquirer
	transcriber Transcriber
	analyzer    Analyzer
	reports     ReportSink
	titles      TitleLookup
	onChange    func(itemkey.Key, State)
	now         func() time.Time
	logger      *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTitleLookup adds video titles to report headers.
func WithTitleLookup(lookup TitleLookup) Option {
	return func(r *Runner) { r.titles = lookup }
}

// WithTransitionHook registers a callback invoked on every state change.
func WithTransitionHook(fn func(itemkey.Key, State)) Option {
	return func(r *Runner) { r.onChange = fn }
}

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner wires the three stages and the report sink together. reports may
// be nil to skip persistence.
func NewRunner(acquirer Acquirer, transcriber Transcriber, analyzer Analyzer, reports ReportSink, logger *slog.Logger, opts ...Option) *Runner {
	runner := &Runner{
		acquirer:    acquirer,
		transcriber: transcriber,
		analyzer:    analyzer,
		reports:     reports,
		now:         time.Now,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Run processes key. A stage failure returns a *StageError and no later stage
// is attempted. An empty transcript ends the run successfully with
// Artifact.Empty set and no report. A report that cannot be written is logged
// and leaves ReportPath empty; the artifact is still returned.
func (r *Runner) Run(ctx context.Context, key itemkey.Key, opts Options) (Artifact, error) {
	ctx = services.WithItemKey(ctx, key.String())
	logger := logging.WithContext(ctx, r.logger)
	started := r.now()
	useCache := opts.UseCache && !opts.ForceRefresh

	r.transition(key, StateAcquiring)
	media, err := r.acquirer.Acquire(services.WithStage(ctx, string(StateAcquiring)), key, opts.ForceRefresh)
	if err != nil {
		return Artifact{}, r.fail(ctx, key, StateAcquiring, err)
	}

	r.transition(key, StateTranscribing)
	transcript, err := r.transcriber.Transcribe(services.WithStage(ctx, string(StateTranscribing)), media, key, useCache)
	if err != nil {
		return Artifact{}, r.fail(ctx, key, StateTranscribing, err)
	}

	artifact := Artifact{
		Key:        key,
		Transcript: transcript.Text,
		CharCount:  transcript.CharCount,
		FromCache:  transcript.FromCache,
	}
	if transcript.Empty() {
		artifact.Empty = true
		artifact.GeneratedAt = r.now()
		r.transition(key, StateDone)
		logger.Info("transcript empty; skipping analysis", logging.String(logging.FieldEventType, "pipeline_empty"))
		return artifact, nil
	}

	r.transition(key, StateAnalyzing)
	verdict, err := r.analyzer.Analyze(services.WithStage(ctx, string(StateAnalyzing)), transcript.Text, key)
	if err != nil {
		return Artifact{}, r.fail(ctx, key, StateAnalyzing, err)
	}
	artifact.Analysis = verdict.Summary
	artifact.Model = verdict.Model

	r.transition(key, StateAssembling)
	assembleCtx := services.WithStage(ctx, string(StateAssembling))
	artifact.Title = r.lookupTitle(assembleCtx, key)
	artifact.GeneratedAt = r.now()
	if r.reports != nil {
		path, err := r.reports.Write(artifact)
		if err != nil {
			logging.WarnWithContext(assembleCtx, r.logger, "report not saved", "report_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that output_dir exists and is writable"),
				logging.String(logging.FieldImpact, "analysis printed but not saved to disk"))
		} else {
			artifact.ReportPath = path
		}
	}

	r.transition(key, StateDone)
	logger.Info("item complete",
		logging.String("report", artifact.ReportPath),
		logging.Int("transcript_chars", artifact.CharCount),
		logging.Bool("transcript_cached", artifact.FromCache),
		logging.Duration("elapsed", r.now().Sub(started)))
	return artifact, nil
}

func (r *Runner) fail(ctx context.Context, key itemkey.Key, stage State, err error) error {
	r.transition(key, StateFailed)
	logging.WithContext(services.WithStage(ctx, string(stage)), r.logger).Error("item failed",
		logging.String(logging.FieldEventType, "stage_failed"),
		logging.String("error_kind", services.Kind(err)),
		logging.Error(err))
	return &StageError{Key: key, Stage: stage, Err: err}
}

func (r *Runner) lookupTitle(ctx context.Context, key itemkey.Key) string {
	if r.titles == nil {
		return ""
	}
	title, err := r.titles.Title(ctx, key.String())
	if err != nil {
		logging.WithContext(ctx, r.logger).Debug("title lookup failed", logging.Error(err))
		return ""
	}
	return title
}

func (r *Runner) transition(key itemkey.Key, state State) {
	if r.onChange != nil {
		r.onChange(key, state)
	}
}
