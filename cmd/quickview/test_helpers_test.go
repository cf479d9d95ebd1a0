package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"quickview/internal/config"
	"quickview/internal/testsupport"
)

const (
	testTranscript = "大家好，今天聊聊 Go 的并发模型。"
	testAnalysis   = "## 核心观点\n视频介绍了 goroutine 与 channel。"
	testTitle      = "Go 并发入门"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	server     *httptest.Server
	asrCalls   atomic.Int32
	llmCalls   atomic.Int32
}

type envOption func(*testing.T, *cliTestEnv)

// withWorkingBinaries installs yt-dlp and ffmpeg stand-ins that write the files
// they are asked for.
func withWorkingBinaries() envOption {
	return func(t *testing.T, env *cliTestEnv) {
		binDir := filepath.Join(testsupport.BaseDir(env.cfg), "tools")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir tools: %v", err)
		}
		ytdlp := "#!/bin/sh\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = \"-o\" ]; then shift; printf 'source-audio' > \"$1\"; fi\n  shift\ndone\n"
		ffmpeg := "#!/bin/sh\nfor last; do :; done\nprintf 'mp3-audio' > \"$last\"\n"
		env.cfg.Acquisition.YtDlpBinary = writeScript(t, binDir, "yt-dlp", ytdlp)
		env.cfg.Acquisition.FFmpegBinary = writeScript(t, binDir, "ffmpeg", ffmpeg)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func setupCLITestEnv(t *testing.T, configOpts []testsupport.ConfigOption, opts ...envOption) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvBilibiliSESSDATA, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Chdir(t.TempDir())

	env := &cliTestEnv{}
	env.server = httptest.NewServer(http.HandlerFunc(env.serve))
	t.Cleanup(env.server.Close)

	configOpts = append([]testsupport.ConfigOption{testsupport.WithServiceURLs(env.server.URL)}, configOpts...)
	env.cfg = testsupport.NewConfig(t, configOpts...)
	env.cfg.Logging.Level = "error"
	for _, opt := range opts {
		opt(t, env)
	}

	env.configPath = filepath.Join(testsupport.BaseDir(env.cfg), "quickview.toml")
	writeTestConfig(t, env.configPath, env.cfg)
	return env
}

func (env *cliTestEnv) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/audio/transcriptions":
		env.asrCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": testTranscript})
	case "/chat/completions":
		env.llmCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "deepseek-chat",
			"choices": []map[string]any{{"message": map[string]string{"content": testAnalysis}, "finish_reason": "stop"}},
		})
	case "/x/web-interface/view":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"bvid": r.URL.Query().Get("bvid"), "title": testTitle, "duration": 90, "owner": map[string]string{"name": "up"}},
		})
	case "/x/v2/history/toview":
		if !strings.Contains(r.Header.Get("Cookie"), "SESSDATA=") {
			_, _ = w.Write([]byte(`{"code":-101,"message":"账号未登录"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"count":2,"list":[` +
			`{"bvid":"BV1xx411c7mD","title":"第一个视频","duration":61,"owner":{"name":"甲"}},` +
			`{"bvid":"BV1yy411c7mE","title":"第二个视频","duration":3725,"owner":{"name":"乙"}}]}}`))
	default:
		http.NotFound(w, r)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func reportFiles(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(cfg.Paths.OutputDir, "*.txt"))
	if err != nil {
		t.Fatalf("glob reports: %v", err)
	}
	return matches
}
