package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quickview/internal/batch"
	"quickview/internal/pipeline"
	"quickview/internal/services"
	"quickview/internal/testsupport"
)

func TestAnalyzePrintsAnalysisAndWritesReport(t *testing.T) {
	env := setupCLITestEnv(t, nil, withWorkingBinaries())

	stdout, stderr, err := runCLI(t, []string{"analyze", "https://www.bilibili.com/video/BV1xx411c7mD/?p=1"}, env.configPath)
	if err != nil {
		t.Fatalf("analyze failed: %v (stderr: %s)", err, stderr)
	}
	requireContains(t, stdout, "视频介绍了 goroutine 与 channel。")
	requireContains(t, stdout, "Report: ")
	requireContains(t, stdout, testTitle)
	requireContains(t, stderr, "BV1xx411c7mD: transcribing")

	reports := reportFiles(t, env.cfg)
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %v", reports)
	}
	data, err := os.ReadFile(reports[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	requireContains(t, string(data), "视频BV号: BV1xx411c7mD")
	requireContains(t, string(data), testTranscript)
}

func TestAnalyzeServesSecondRunFromCache(t *testing.T) {
	env := setupCLITestEnv(t, nil, withWorkingBinaries())

	for i := 0; i < 2; i++ {
		if _, stderr, err := runCLI(t, []string{"analyze", "BV1xx411c7mD"}, env.configPath); err != nil {
			t.Fatalf("run %d failed: %v (stderr: %s)", i+1, err, stderr)
		}
	}
	if got := env.asrCalls.Load(); got != 1 {
		t.Fatalf("expected one transcription request, got %d", got)
	}
	if got := env.llmCalls.Load(); got != 2 {
		t.Fatalf("expected analysis on every run, got %d", got)
	}
	if reports := reportFiles(t, env.cfg); len(reports) != 2 {
		t.Fatalf("expected two distinct reports, got %v", reports)
	}

	if _, _, err := runCLI(t, []string{"analyze", "--no-cache", "BV1xx411c7mD"}, env.configPath); err != nil {
		t.Fatalf("no-cache run failed: %v", err)
	}
	if got := env.asrCalls.Load(); got != 2 {
		t.Fatalf("--no-cache should transcribe again, got %d requests", got)
	}
}

func TestAnalyzeJSONOutput(t *testing.T) {
	env := setupCLITestEnv(t, nil, withWorkingBinaries())

	stdout, _, err := runCLI(t, []string{"analyze", "--json", "BV1xx411c7mD"}, env.configPath)
	if err != nil {
		t.Fatalf("analyze --json failed: %v", err)
	}
	var view itemView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode json: %v (%s)", err, stdout)
	}
	if view.Status != "succeeded" || view.Key != "BV1xx411c7mD" || view.ReportPath == "" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.TranscriptChars != len([]rune(testTranscript)) {
		t.Fatalf("unexpected char count %d", view.TranscriptChars)
	}
}

func TestAnalyzeAcquisitionFailureNamesStage(t *testing.T) {
	env := setupCLITestEnv(t, []testsupport.ConfigOption{testsupport.WithStubbedBinaries()})

	_, _, err := runCLI(t, []string{"analyze", "BV1xx411c7mD"}, env.configPath)
	if err == nil {
		t.Fatal("expected failure when yt-dlp produces nothing")
	}
	if !errors.Is(err, services.ErrAcquisition) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	requireContains(t, err.Error(), "acquiring")
	if env.asrCalls.Load() != 0 {
		t.Fatal("transcription must not run after a failed acquisition")
	}
}

func TestAnalyzeRejectsInvalidIdentifier(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	_, _, err := runCLI(t, []string{"analyze", "not a video"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBatchFromFileAppliesSelectionAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t, nil, withWorkingBinaries())
	list := filepath.Join(testsupport.BaseDir(env.cfg), "ids.txt")
	content := "# queue\nBV1xx411c7mD\n\nBV1yy411c7mE\nBV1zz411c7mF\n"
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	xlsx := filepath.Join(testsupport.BaseDir(env.cfg), "summary.xlsx")

	stdout, stderr, err := runCLI(t, []string{"batch", "--from-file", list, "--select", "2-3", "--summary-xlsx", xlsx, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("batch failed: %v (stderr: %s)", err, stderr)
	}
	var summary summaryView
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decode summary: %v (%s)", err, stdout)
	}
	if summary.Total != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Items[0].Key != "BV1yy411c7mE" || summary.Items[1].Key != "BV1zz411c7mF" {
		t.Fatalf("selection order not preserved: %+v", summary.Items)
	}
	if _, err := os.Stat(xlsx); err != nil {
		t.Fatalf("expected xlsx summary: %v", err)
	}

	stdout, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	requireContains(t, stdout, summary.RunID)
	requireContains(t, stdout, list)

	stdout, _, err = runCLI(t, []string{"history", "show", summary.RunID}, env.configPath)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	requireContains(t, stdout, "BV1zz411c7mF")
}

func TestBatchMalformedIdentifierFailsOnlyThatItem(t *testing.T) {
	env := setupCLITestEnv(t, nil, withWorkingBinaries())
	list := filepath.Join(testsupport.BaseDir(env.cfg), "ids.txt")
	if err := os.WriteFile(list, []byte("BV1xx411c7mD\nnot-a-bvid\nBV1zz411c7mF\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	stdout, stderr, err := runCLI(t, []string{"batch", "--from-file", list, "--json"}, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v (stderr: %s)", err, stderr)
	}
	var summary summaryView
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decode summary: %v (%s)", err, stdout)
	}
	if summary.Total != 3 || summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	keys := []string{summary.Items[0].Key, summary.Items[1].Key, summary.Items[2].Key}
	if keys[0] != "BV1xx411c7mD" || keys[1] != "not-a-bvid" || keys[2] != "BV1zz411c7mF" {
		t.Fatalf("input order not preserved: %v", keys)
	}
	bad := summary.Items[1]
	if bad.Status != batch.StatusFailed || bad.FailedStage != string(pipeline.StateAcquiring) || bad.Error == "" {
		t.Fatalf("unexpected malformed item %+v", bad)
	}
	if got := len(reportFiles(t, env.cfg)); got != 2 {
		t.Fatalf("expected 2 reports, got %d", got)
	}
}

func TestBatchFailuresExitNonZeroAfterSummary(t *testing.T) {
	env := setupCLITestEnv(t, []testsupport.ConfigOption{testsupport.WithStubbedBinaries()})

	stdout, _, err := runCLI(t, []string{"batch", "BV1xx411c7mD", "BV1yy411c7mE"}, env.configPath)
	if err == nil {
		t.Fatal("expected error when items fail")
	}
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stdout, "Failed: 2")
	requireContains(t, stdout, "acquiring")
}

func TestBatchRejectsBadSelection(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	_, _, err := runCLI(t, []string{"batch", "--select", "3", "BV1xx411c7mD", "BV1yy411c7mE"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBatchDefaultsToWatchLater(t *testing.T) {
	env := setupCLITestEnv(t, []testsupport.ConfigOption{testsupport.WithSESSDATA("sess")}, withWorkingBinaries())

	stdout, stderr, err := runCLI(t, []string{"batch", "--select", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("batch failed: %v (stderr: %s)", err, stderr)
	}
	requireContains(t, stdout, "BV1yy411c7mE")
	requireContains(t, stdout, "Succeeded: 1")
	if strings.Contains(stdout, "BV1xx411c7mD") {
		t.Fatalf("unselected item ran: %s", stdout)
	}
}

func TestWatchLaterListsPositions(t *testing.T) {
	env := setupCLITestEnv(t, []testsupport.ConfigOption{testsupport.WithSESSDATA("sess")})

	stdout, _, err := runCLI(t, []string{"watchlater"}, env.configPath)
	if err != nil {
		t.Fatalf("watchlater failed: %v", err)
	}
	requireContains(t, stdout, "第二个视频")
	requireContains(t, stdout, "1:02:05")
	requireContains(t, stdout, "2 videos")
}

func TestWatchLaterWithoutSessionIsConfigurationError(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	_, _, err := runCLI(t, []string{"watchlater"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t, nil, withWorkingBinaries())
	if _, _, err := runCLI(t, []string{"analyze", "BV1xx411c7mD"}, env.configPath); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	requireContains(t, stdout, "Cached entries:     1")
	requireContains(t, stdout, "Downloaded audio:   1 files")

	stdout, _, err = runCLI(t, []string{"cache", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("cache list failed: %v", err)
	}
	requireContains(t, stdout, "BV1xx411c7mD")

	stdout, _, err = runCLI(t, []string{"cache", "remove", "1xx411c7mD"}, env.configPath)
	if err != nil {
		t.Fatalf("cache remove failed: %v", err)
	}
	requireContains(t, stdout, "Removed 1 cache entries for BV1xx411c7mD")
	requireContains(t, stdout, "Removed downloaded audio")

	stdout, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	requireContains(t, stdout, "Cleared 0 cache entries")
}

func TestDoctorOffline(t *testing.T) {
	env := setupCLITestEnv(t, []testsupport.ConfigOption{testsupport.WithStubbedBinaries()})

	stdout, _, err := runCLI(t, []string{"doctor", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor failed: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "All required checks passed")
	requireContains(t, stdout, "Bilibili SESSDATA")
}

func TestDoctorReportsBadConfiguration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("SILICONFLOW_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	path := filepath.Join(t.TempDir(), "empty.toml")
	if err := os.WriteFile(path, []byte("[batch]\nworkers = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"doctor", "--offline"}, path)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stdout, "Configuration")
	requireContains(t, stdout, "SILICONFLOW_API_KEY")
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("SILICONFLOW_API_KEY", "sf")
	t.Setenv("DEEPSEEK_API_KEY", "ds")
	target := filepath.Join(t.TempDir(), "conf", "quickview.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	requireContains(t, stdout, target)

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}

	stdout, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate failed: %v", err)
	}
	requireContains(t, stdout, "Configuration valid")
}
