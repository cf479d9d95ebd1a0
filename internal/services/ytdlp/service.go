package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	// YtDlpCommand is the default yt-dlp executable.
	YtDlpCommand = "yt-dlp"
	// FFmpegCommand is the default ffmpeg executable.
	FFmpegCommand = "ffmpeg"

	defaultBitrate    = "32k"
	defaultSampleRate = 16000
	sourceSuffix      = ".source"
)

// Config captures the executables and output format.
type Config struct {
	YtDlpBinary  string
	FFmpegBinary string
	AudioBitrate string
	SampleRate   int
}

// Service downloads and transcodes audio.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a service, filling unset fields with defaults.
func NewService(cfg Config) *Service {
	if strings.TrimSpace(cfg.YtDlpBinary) == "" {
		cfg.YtDlpBinary = YtDlpCommand
	}
	if strings.TrimSpace(cfg.FFmpegBinary) == "" {
		cfg.FFmpegBinary = FFmpegCommand
	}
	if strings.TrimSpace(cfg.AudioBitrate) == "" {
		cfg.AudioBitrate = defaultBitrate
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Fetch downloads the best audio stream of url and writes an MP3 to dest. The
// intermediate download is removed whether or not the transcode succeeds. On
// failure dest may hold a partial file; callers write to a temp path.
func (s *Service) Fetch(ctx context.Context, url, dest string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("ytdlp fetch: url required")
	}
	if strings.TrimSpace(dest) == "" {
		return errors.New("ytdlp fetch: destination required")
	}

	source := dest + sourceSuffix
	defer removeQuietly(source, source+".part", source+".ytdl")

	if err := s.run(ctx, s.cfg.YtDlpBinary, s.downloadArgs(url, source)...); err != nil {
		return fmt.Errorf("ytdlp download: %w", err)
	}
	if info, err := os.Stat(source); err != nil {
		return fmt.Errorf("ytdlp download: expected output %s: %w", source, err)
	} else if info.Size() == 0 {
		return fmt.Errorf("ytdlp download: %s is empty", source)
	}

	if err := s.run(ctx, s.cfg.FFmpegBinary, s.transcodeArgs(source, dest)...); err != nil {
		return fmt.Errorf("ffmpeg transcode: %w", err)
	}
	return nil
}

func (s *Service) downloadArgs(url, output string) []string {
	return []string{
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-progress",
		"--force-overwrites",
		"-o", output,
		url,
	}
}

func (s *Service) transcodeArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", s.cfg.AudioBitrate,
		"-f", "mp3",
		dest,
	}
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", name, ctxErr)
		}
		return fmt.Errorf("%s: %w: %s", name, err, tail(strings.TrimSpace(string(output)), 600))
	}
	return nil
}

func removeQuietly(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
