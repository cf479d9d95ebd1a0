package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"quickview/internal/history"
	"quickview/internal/itemkey"
	"quickview/internal/logging"
	"quickview/internal/pipeline"
	"quickview/internal/services"
)

// Item outcomes.
const (
	StatusSucceeded = history.StatusSucceeded
	StatusEmpty     = history.StatusEmpty
	StatusFailed    = history.StatusFailed
)

// ErrPanic marks an item whose run panicked.
var ErrPanic = errors.New("item panicked")

// ItemRunner processes a single item.
type ItemRunner interface {
	Run(ctx context.Context, key itemkey.Key, opts pipeline.Options) (pipeline.Artifact, error)
}

// Recorder persists run history. *history.Store satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, id, source string, total int) error
	RecordItem(ctx context.Context, rec history.ItemRecord) error
	FinishRun(ctx context.Context, id string, succeeded, failed int) error
}

// ItemResult is the outcome of one item, at its input position.
type ItemResult struct {
	Position int
	Key      itemkey.Key
	Status   string
	Stage    pipeline.State
	Err      error
	Artifact pipeline.Artifact
	Duration time.Duration
}

// Summary aggregates a batch. Items preserves input order.
type Summary struct {
	RunID     string
	Source    string
	Total     int
	Succeeded int
	Failed    int
	// Empty counts succeeded items whose transcript had no text.
	Empty     int
	Items     []ItemResult
	StartedAt time.Time
	Duration  time.Duration
}

// HasFailures reports whether any item failed.
func (s Summary) HasFailures() bool { return s.Failed > 0 }

// Orchestrator runs batches.
type Orchestrator struct {
	runner   ItemRunner
	recorder Recorder
	workers  int
	source   string
	opts     pipeline.Options
	progress func(ItemResult)
	sleep    func(context.Context, time.Duration) error
	newID    func() string
	logger   *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the pool size. Values below 2 keep the batch sequential.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithRecorder records every run and item outcome.
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithSource labels the run in history, e.g. "watchlater" or a file name.
func WithSource(source string) Option {
	return func(o *Orchestrator) { o.source = source }
}

// WithPipelineOptions sets the options passed to every item run.
func WithPipelineOptions(opts pipeline.Options) Option {
	return func(o *Orchestrator) { o.opts = opts }
}

// WithProgress registers a callback invoked once per finished item. It is
// always called from a single goroutine.
func WithProgress(fn func(ItemResult)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithSleeper overrides how pacing delays are waited out.
func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// New constructs an Orchestrator around runner.
func New(runner ItemRunner, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:  runner,
		workers: 1,
		source:  "batch",
		opts:    pipeline.DefaultOptions(),
		sleep:   sleepContext,
		newID:   uuid.NewString,
		logger:  logging.NewComponentLogger(logger, "batch"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunBatch processes keys and returns the aggregate outcome. In sequential
// mode pacing is waited between items and skipped after the last one.
func (o *Orchestrator) RunBatch(ctx context.Context, keys []itemkey.Key, pacing time.Duration) Summary {
	candidates := make([]itemkey.Candidate, len(keys))
	for i, key := range keys {
		candidates[i] = itemkey.Candidate{Raw: key.String(), Key: key}
	}
	return o.run(ctx, candidates, pacing)
}

// RunCandidates is RunBatch for parsed user input. A candidate that failed to
// parse is recorded as failed at the acquiring stage, in its input position,
// and the remaining candidates still run.
func (o *Orchestrator) RunCandidates(ctx context.Context, candidates []itemkey.Candidate, pacing time.Duration) Summary {
	return o.run(ctx, candidates, pacing)
}

func (o *Orchestrator) run(ctx context.Context, items []itemkey.Candidate, pacing time.Duration) Summary {
	runID := o.newID()
	ctx = services.WithRequestID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	summary := Summary{
		RunID:     runID,
		Source:    o.source,
		Total:     len(items),
		Items:     make([]ItemResult, len(items)),
		StartedAt: time.Now(),
	}
	o.startRun(ctx, summary)
	logger.Info("batch started",
		logging.Int("items", len(items)),
		logging.Int("workers", o.effectiveWorkers(len(items))),
		logging.Duration("pacing", pacing),
		logging.String("source", o.source))

	if o.effectiveWorkers(len(items)) > 1 {
		o.runParallel(ctx, items, &summary)
	} else {
		o.runSequential(ctx, items, pacing, &summary)
	}

	summary.Duration = time.Since(summary.StartedAt)
	o.finishRun(ctx, summary)
	logger.Info("batch finished",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("empty", summary.Empty),
		logging.Duration("elapsed", summary.Duration))
	return summary
}

func (o *Orchestrator) effectiveWorkers(total int) int {
	workers := o.workers
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

func (o *Orchestrator) runSequential(ctx context.Context, items []itemkey.Candidate, pacing time.Duration, summary *Summary) {
	for i, item := range items {
		if item.Err != nil {
			o.collect(ctx, summary, rejected(i, item))
			continue
		}
		if err := ctx.Err(); err != nil {
			o.collect(ctx, summary, cancelled(i, item.Key, err))
			continue
		}
		o.collect(ctx, summary, o.runItem(ctx, i, item.Key))
		if pacing > 0 && i < len(items)-1 && ctx.Err() == nil {
			logging.WithContext(ctx, o.logger).Debug("pacing before next item", logging.Duration("delay", pacing))
			_ = o.sleep(ctx, pacing)
		}
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, items []itemkey.Candidate, summary *Summary) {
	type job struct {
		position int
		item     itemkey.Candidate
	}
	jobs := make(chan job)
	results := make(chan ItemResult)

	var wg sync.WaitGroup
	for w := 0; w < o.effectiveWorkers(len(items)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if j.item.Err != nil {
					results <- rejected(j.position, j.item)
					continue
				}
				if err := ctx.Err(); err != nil {
					results <- cancelled(j.position, j.item.Key, err)
					continue
				}
				results <- o.runItem(ctx, j.position, j.item.Key)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{position: i, item: item}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make([]bool, len(items))
	for result := range results {
		seen[result.Position] = true
		o.collect(ctx, summary, result)
	}
	for i, item := range items {
		if seen[i] {
			continue
		}
		if item.Err != nil {
			o.collect(ctx, summary, rejected(i, item))
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		o.collect(ctx, summary, cancelled(i, item.Key, err))
	}
}

// runItem runs one key, converting panics into failures.
func (o *Orchestrator) runItem(ctx context.Context, position int, key itemkey.Key) (result ItemResult) {
	started := time.Now()
	result = ItemResult{Position: position, Key: key}
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(services.WithItemKey(ctx, key.String()), o.logger, "item panicked", "item_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this as a bug with the log file attached"))
			result.Status = StatusFailed
			result.Err = fmt.Errorf("%w: %v", ErrPanic, r)
			result.Artifact = pipeline.Artifact{}
		}
		result.Duration = time.Since(started)
	}()

	artifact, err := o.runner.Run(ctx, key, o.opts)
	switch {
	case err != nil:
		result.Status = StatusFailed
		result.Err = err
		result.Stage = pipeline.FailedStage(err)
	case artifact.Empty:
		result.Status = StatusEmpty
		result.Artifact = artifact
	default:
		result.Status = StatusSucceeded
		result.Artifact = artifact
	}
	return result
}

func cancelled(position int, key itemkey.Key, err error) ItemResult {
	return ItemResult{Position: position, Key: key, Status: StatusFailed, Err: fmt.Errorf("not started: %w", err)}
}

// rejected reports a candidate whose identifier could not be parsed. Its Key
// holds the raw text so tables and history still show what was given.
func rejected(position int, candidate itemkey.Candidate) ItemResult {
	return ItemResult{
		Position: position,
		Key:      itemkey.Key(candidate.Label()),
		Status:   StatusFailed,
		Stage:    pipeline.StateAcquiring,
		Err: services.Wrap(services.ErrAcquisition, string(pipeline.StateAcquiring), "identify",
			"identifier malformed", candidate.Err),
	}
}

// collect is the single aggregation point for counters and history.
func (o *Orchestrator) collect(ctx context.Context, summary *Summary, result ItemResult) {
	summary.Items[result.Position] = result
	switch result.Status {
	case StatusFailed:
		summary.Failed++
	case StatusEmpty:
		summary.Succeeded++
		summary.Empty++
	default:
		summary.Succeeded++
	}
	if o.progress != nil {
		o.progress(result)
	}
	o.recordItem(ctx, summary.RunID, result)
}

func (o *Orchestrator) startRun(ctx context.Context, summary Summary) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.StartRun(context.WithoutCancel(ctx), summary.RunID, summary.Source, summary.Total); err != nil {
		o.historyWarning(ctx, err)
	}
}

func (o *Orchestrator) recordItem(ctx context.Context, runID string, result ItemResult) {
	if o.recorder == nil {
		return
	}
	rec := history.ItemRecord{
		RunID:           runID,
		Position:        result.Position,
		Key:             result.Key.String(),
		Status:          result.Status,
		FailedStage:     string(result.Stage),
		ReportPath:      result.Artifact.ReportPath,
		TranscriptChars: result.Artifact.CharCount,
		Duration:        result.Duration,
	}
	if result.Err != nil {
		rec.ErrorKind = services.Kind(result.Err)
		rec.ErrorMessage = result.Err.Error()
	}
	if err := o.recorder.RecordItem(context.WithoutCancel(ctx), rec); err != nil {
		o.historyWarning(ctx, err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, summary Summary) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.FinishRun(context.WithoutCancel(ctx), summary.RunID, summary.Succeeded, summary.Failed); err != nil {
		o.historyWarning(ctx, err)
	}
}

func (o *Orchestrator) historyWarning(ctx context.Context, err error) {
	logging.WarnWithContext(ctx, o.logger, "history write failed", "history_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the state directory; delete history.db if it is corrupt"),
		logging.String(logging.FieldImpact, "run results are not recorded in history"))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
