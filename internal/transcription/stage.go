// Package transcription turns downloaded audio into text through a speech
// recognizer, caching non-empty transcripts per item key.
package transcription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"quickview/internal/acquisition"
	"quickview/internal/cache"
	"quickview/internal/itemkey"
	"quickview/internal/logging"
	"quickview/internal/services"
	"quickview/internal/throttle"
)

// CacheStage is the cache namespace for transcripts.
const CacheStage = "transcript"

const stageName = "transcription"

// Recognizer converts audio to text.
type Recognizer interface {
	Transcribe(ctx context.Context, r io.Reader, filename string) (string, error)
	Model() string
	ProducerVersion() string
}

// Result is a transcript for one item.
type Result struct {
	Key  itemkey.Key
	Text string
	// CharCount is the number of runes in Text, not its byte length.
	CharCount int
	Model     string
	FromCache bool
}

// Empty reports whether the recognizer found no speech.
func (r Result) Empty() bool { return r.Text == "" }

// Stage runs transcription behind the cache.
type Stage struct {
	cache      *cache.Store
	recognizer Recognizer
	gate       *throttle.Gate
	logger     *slog.Logger
}

// Option customizes the stage.
type Option func(*Stage)

// WithGate routes recognizer calls through a throttle gate.
func WithGate(gate *throttle.Gate) Option {
	return func(s *Stage) { s.gate = gate }
}

// New constructs the stage. store may be nil to disable caching.
func New(store *cache.Store, recognizer Recognizer, logger *slog.Logger, opts ...Option) *Stage {
	stage := &Stage{
		cache:      store,
		recognizer: recognizer,
		logger:     logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(stage)
	}
	return stage
}

// Transcribe returns the transcript for media. With useCache set, a valid
// cached transcript is returned without calling the recognizer. Fresh
// non-empty transcripts are always written back; empty ones never are.
// Failures wrap services.ErrTranscription.
func (s *Stage) Transcribe(ctx context.Context, media acquisition.MediaHandle, key itemkey.Key, useCache bool) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	if s.recognizer == nil {
		return Result{}, services.Wrap(services.ErrTranscription, stageName, "transcribe", "no recognizer configured", nil)
	}
	version := s.recognizer.ProducerVersion()

	if useCache && s.cache != nil {
		if entry, ok := s.cache.Get(ctx, key.String(), CacheStage, version); ok {
			result := newResult(key, entry.Payload, entry.Meta["model"], true)
			logger.Info("transcript cache hit", logging.Int("chars", result.CharCount))
			return result, nil
		}
	}

	started := time.Now()
	text, err := s.recognize(ctx, media.Path)
	if err != nil {
		return Result{}, err
	}
	result := newResult(key, text, s.recognizer.Model(), false)
	logger.Info("transcription complete",
		logging.Int("chars", result.CharCount),
		logging.String("model", result.Model),
		logging.Duration("elapsed", time.Since(started)))

	if result.Empty() {
		logging.WarnWithContext(ctx, logger, "recognizer returned no text", "transcript_empty",
			logging.String("audio_path", media.Path),
			logging.String(logging.FieldErrorHint, "check that the video has spoken audio"),
			logging.String(logging.FieldImpact, "analysis skipped; transcript not cached"))
		return result, nil
	}

	if s.cache != nil {
		meta := map[string]string{
			"audio_path": media.Path,
			"model":      result.Model,
			"char_count": strconv.Itoa(result.CharCount),
		}
		if err := s.cache.Put(key.String(), CacheStage, result.Text, version, meta); err != nil {
			logging.WarnWithContext(ctx, logger, "failed to cache transcript", "cache_put_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check free space and permissions on the cache directory"),
				logging.String(logging.FieldImpact, "transcript will be recomputed next run"))
		}
	}
	return result, nil
}

func (s *Stage) recognize(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", services.Wrap(services.ErrTranscription, stageName, "open", "media path required", nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageName, "open", "open audio", err)
	}
	defer file.Close()

	var text string
	err = s.gate.Do(ctx, func(ctx context.Context) error {
		var callErr error
		text, callErr = s.recognizer.Transcribe(ctx, file, filepath.Base(path))
		return callErr
	})
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageName, "recognize", fmt.Sprintf("model %s", s.recognizer.Model()), err)
	}
	return text, nil
}

func newResult(key itemkey.Key, text, model string, fromCache bool) Result {
	text = norm.NFC.String(strings.TrimSpace(text))
	return Result{
		Key:       key,
		Text:      text,
		CharCount: utf8.RuneCountInString(text),
		Model:     model,
		FromCache: fromCache,
	}
}
