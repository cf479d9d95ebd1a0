package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quickview/internal/history"
	"quickview/internal/services"
	"quickview/internal/testsupport"
)

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if store.Path() != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected db path %q", store.Path())
	}
	if err := store.StartRun(ctx, "run-1", "watchlater", 2); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	records := []history.ItemRecord{
		{RunID: "run-1", Position: 1, Key: "BV1bbbbbbbbb", Status: history.StatusFailed, FailedStage: "transcribing",
			ErrorKind: "transcription", ErrorMessage: "http 500", Duration: 1500 * time.Millisecond},
		{RunID: "run-1", Position: 0, Key: "BV1aaaaaaaaa", Status: history.StatusSucceeded, ReportPath: "/out/a.txt",
			TranscriptChars: 42, Duration: 2 * time.Second},
	}
	for _, rec := range records {
		if err := store.RecordItem(ctx, rec); err != nil {
			t.Fatalf("RecordItem failed: %v", err)
		}
	}
	if err := store.FinishRun(ctx, "run-1", 1, 1); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
	run := runs[0]
	if run.ID != "run-1" || run.Source != "watchlater" || run.Total != 2 || run.Succeeded != 1 || run.Failed != 1 || !run.Finished() {
		t.Fatalf("unexpected run %+v", run)
	}

	items, err := store.ItemsForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ItemsForRun failed: %v", err)
	}
	if len(items) != 2 || items[0].Key != "BV1aaaaaaaaa" || items[1].Key != "BV1bbbbbbbbb" {
		t.Fatalf("items not in batch order: %+v", items)
	}
	if items[0].ReportPath != "/out/a.txt" || items[0].TranscriptChars != 42 || items[0].Duration != 2*time.Second {
		t.Fatalf("unexpected success record %+v", items[0])
	}
	if items[1].FailedStage != "transcribing" || items[1].ErrorKind != "transcription" || items[1].ReportPath != "" {
		t.Fatalf("unexpected failure record %+v", items[1])
	}
}

func TestRecentRunsNewestFirstAndLimited(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.StartRun(ctx, id, "file", 1); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if runs[0].Finished() {
		t.Fatal("run without FinishRun should be unfinished")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	err := store.FinishRun(context.Background(), "missing", 0, 0)
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestReopenKeepsHistoryAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := history.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.StartRun(ctx, "persisted", "single", 1); err != nil {
		t.Fatal(err)
	}
	if err := first.RecordItem(ctx, history.ItemRecord{RunID: "persisted", Key: "BV1aaaaaaaaa", Status: history.StatusEmpty}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := testsupport.MustOpenHistory(t, cfg)
	runs, err := second.RecentRuns(ctx, 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected persisted run, got %v (%v)", runs, err)
	}
	removed, err := second.Clear(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("Clear removed %d (%v)", removed, err)
	}
	items, err := second.ItemsForRun(ctx, "persisted")
	if err != nil || len(items) != 0 {
		t.Fatalf("expected items cleared, got %v (%v)", items, err)
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	if _, err := history.Open(nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 9"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = history.OpenPath(path)
	if !errors.Is(err, history.ErrSchemaMismatch) || !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
