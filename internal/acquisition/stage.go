package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"quickview/internal/config"
	"quickview/internal/itemkey"
	"quickview/internal/logging"
	"quickview/internal/services"
	"quickview/internal/throttle"
)

const (
	audioExt      = ".mp3"
	lockDirName   = ".locks"
	lockRetry     = 250 * time.Millisecond
	stageName     = "acquisition"
	tempPattern   = ".*.mp3.tmp"
	tempSuffixExt = ".tmp"
)

// Fetcher downloads and transcodes the audio at url into dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// MediaHandle points at the local audio for one item.
type MediaHandle struct {
	Key       itemkey.Key
	Path      string
	SizeBytes int64
	// Reused is true when an existing download satisfied the request.
	Reused bool
}

// Usage summarizes the download directory.
type Usage struct {
	Files int
	Bytes int64
}

// Stage turns item keys into media handles.
type Stage struct {
	dir          string
	videoBaseURL string
	timeout      time.Duration
	fetcher      Fetcher
	gate         *throttle.Gate
	logger       *slog.Logger
}

// Option customizes the stage.
type Option func(*Stage)

// WithGate routes fetches through a throttle gate.
func WithGate(gate *throttle.Gate) Option {
	return func(s *Stage) { s.gate = gate }
}

// New constructs the acquisition stage.
func New(cfg *config.Config, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Stage {
	stage := &Stage{
		dir:          cfg.Paths.DownloadDir,
		videoBaseURL: cfg.Bilibili.VideoBaseURL,
		timeout:      time.Duration(cfg.Acquisition.TimeoutSeconds) * time.Second,
		fetcher:      fetcher,
		logger:       logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(stage)
	}
	return stage
}

// Path returns where the audio for key is stored.
func (s *Stage) Path(key itemkey.Key) string {
	return filepath.Join(s.dir, key.String()+audioExt)
}

// Acquire returns local audio for key, fetching it when no usable download
// exists or forceRefresh is set. Failures wrap services.ErrAcquisition.
func (s *Stage) Acquire(ctx context.Context, key itemkey.Key, forceRefresh bool) (MediaHandle, error) {
	if key == "" {
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "acquire", "item key required", nil)
	}
	logger := logging.WithContext(ctx, s.logger)
	final := s.Path(key)

	if !forceRefresh {
		if handle, ok := s.existing(key, final); ok {
			logger.Info("reusing downloaded audio", logging.String("path", final), logging.Int64("size_bytes", handle.SizeBytes))
			return handle, nil
		}
	}

	if err := os.MkdirAll(filepath.Join(s.dir, lockDirName), 0o755); err != nil {
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "prepare", "create download directory", err)
	}
	lock := flock.New(filepath.Join(s.dir, lockDirName, key.String()+".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil || !locked {
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "lock", "wait for download lock", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Debug("release download lock failed", logging.Error(err))
		}
	}()

	// another process may have finished the download while we waited
	if !forceRefresh {
		if handle, ok := s.existing(key, final); ok {
			logger.Info("download completed by another run", logging.String("path", final))
			return handle, nil
		}
	}

	return s.fetch(ctx, logger, key, final)
}

func (s *Stage) fetch(ctx context.Context, logger *slog.Logger, key itemkey.Key, final string) (MediaHandle, error) {
	if s.fetcher == nil {
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "fetch", "no fetcher configured", nil)
	}
	tmp, err := os.CreateTemp(s.dir, "."+key.String()+tempPattern)
	if err != nil {
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "fetch", "create temp file", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	fetchCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	url := itemkey.VideoURL(s.videoBaseURL, key)
	started := time.Now()
	logger.Info("fetching audio", logging.String("url", url))
	err = s.gate.Do(fetchCtx, func(ctx context.Context) error {
		return s.fetcher.Fetch(ctx, url, tmpPath)
	})
	if err != nil {
		if ctxErr := fetchCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "fetch", "download "+url, err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "verify", "stat fetched audio", err)
	}
	if info.Size() == 0 {
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "verify", "fetched audio is empty", nil)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return MediaHandle{}, services.Wrap(services.ErrAcquisition, stageName, "commit", "move audio into place", err)
	}
	committed = true

	logger.Info("audio ready",
		logging.String("path", final),
		logging.Int64("size_bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)))
	return MediaHandle{Key: key, Path: final, SizeBytes: info.Size()}, nil
}

func (s *Stage) existing(key itemkey.Key, path string) (MediaHandle, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return MediaHandle{}, false
	}
	return MediaHandle{Key: key, Path: path, SizeBytes: info.Size(), Reused: true}, true
}

// Remove deletes the download for key. It reports whether a file existed.
func (s *Stage) Remove(key itemkey.Key) (bool, error) {
	err := os.Remove(s.Path(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("remove download: %w", err)
	}
}

// Usage counts finished downloads.
func (s *Stage) Usage() (Usage, error) {
	var usage Usage
	err := s.eachDownload(func(path string, info fs.FileInfo) error {
		usage.Files++
		usage.Bytes += info.Size()
		return nil
	})
	return usage, err
}

// Clear deletes every finished download and stale temp file.
func (s *Stage) Clear() (int, error) {
	removed := 0
	err := s.eachDownload(func(path string, _ fs.FileInfo) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}
	entries, _ := os.ReadDir(s.dir)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), tempSuffixExt) {
			_ = os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}
	return removed, nil
}

func (s *Stage) eachDownload(fn func(path string, info fs.FileInfo) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read download directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != audioExt || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if err := fn(filepath.Join(s.dir, entry.Name()), info); err != nil {
			return err
		}
	}
	return nil
}
