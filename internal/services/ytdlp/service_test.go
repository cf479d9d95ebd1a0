package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

type recordedCall struct {
	name string
	args []string
}

func outputArg(args []string) string {
	for i, arg := range args {
		if arg == "-o" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return args[len(args)-1]
}

func TestFetchDownloadsThenTranscodes(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "BV1xx411c7mD.mp3.tmp")
	svc := NewService(Config{YtDlpBinary: "yt", FFmpegBinary: "ff"})
	var calls []recordedCall
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		calls = append(calls, recordedCall{name: name, args: args})
		return os.WriteFile(outputArg(args), []byte("audio"), 0o644)
	})

	if err := svc.Fetch(context.Background(), "https://www.bilibili.com/video/BV1xx411c7mD", dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(calls) != 2 || calls[0].name != "yt" || calls[1].name != "ff" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	for _, want := range []string{"-f", "bestaudio/best", "--no-playlist"} {
		if !slices.Contains(calls[0].args, want) {
			t.Fatalf("download args missing %q: %v", want, calls[0].args)
		}
	}
	joined := strings.Join(calls[1].args, " ")
	for _, want := range []string{"-ac 1", "-ar 16000", "-c:a libmp3lame", "-b:a 32k"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("transcode args missing %q: %s", want, joined)
		}
	}
	if _, err := os.Stat(dest + sourceSuffix); !os.IsNotExist(err) {
		t.Fatalf("intermediate download should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected destination: %v", err)
	}
}

func TestFetchRemovesIntermediateOnTranscodeFailure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.mp3")
	svc := NewService(Config{})
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name == FFmpegCommand {
			return errors.New("boom")
		}
		return os.WriteFile(outputArg(args), []byte("audio"), 0o644)
	})

	err := svc.Fetch(context.Background(), "https://example.invalid/v", dest)
	if err == nil || !strings.Contains(err.Error(), "ffmpeg transcode") {
		t.Fatalf("expected transcode error, got %v", err)
	}
	if _, statErr := os.Stat(dest + sourceSuffix); !os.IsNotExist(statErr) {
		t.Fatalf("intermediate download should be removed, stat err=%v", statErr)
	}
}

func TestFetchRejectsEmptyDownload(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.mp3")
	svc := NewService(Config{})
	ffmpegCalled := false
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name == FFmpegCommand {
			ffmpegCalled = true
			return nil
		}
		return os.WriteFile(outputArg(args), nil, 0o644)
	})

	if err := svc.Fetch(context.Background(), "https://example.invalid/v", dest); err == nil {
		t.Fatal("expected error for empty download")
	}
	if ffmpegCalled {
		t.Fatal("ffmpeg should not run on an empty download")
	}
}

func TestFetchValidatesArguments(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.Fetch(context.Background(), "", "x"); err == nil {
		t.Fatal("expected error for empty url")
	}
	if err := svc.Fetch(context.Background(), "u", ""); err == nil {
		t.Fatal("expected error for empty destination")
	}
}
