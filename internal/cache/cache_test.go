package cache_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"quickview/internal/cache"
	"quickview/internal/logging"
	"quickview/internal/services"
)

const key = "BV1xx411c7mD"

func newStore(t *testing.T, dir string) *cache.Store {
	t.Helper()
	return cache.New(dir, time.Minute, logging.NewNop())
}

func TestPutThenGet(t *testing.T) {
	store := newStore(t, t.TempDir())

	if err := store.Put(key, "transcript", "hello", "v1", map[string]string{"model": "m"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	entry, ok := store.Get(context.Background(), key, "transcript", "v1")
	if !ok {
		t.Fatal("expected hit")
	}
	if entry.Payload != "hello" || entry.Meta["model"] != "m" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "transcript", key+".json")); err != nil {
		t.Fatalf("expected entry on disk: %v", err)
	}
}

func TestEntriesSurviveNewStore(t *testing.T) {
	dir := t.TempDir()
	if err := newStore(t, dir).Put(key, "transcript", "hello", "v1", nil); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	entry, ok := newStore(t, dir).Get(context.Background(), key, "transcript", "v1")
	if !ok || entry.Payload != "hello" {
		t.Fatalf("expected persisted hit, got %+v ok=%v", entry, ok)
	}
}

func TestVersionMismatchIsMiss(t *testing.T) {
	store := newStore(t, t.TempDir())
	if err := store.Put(key, "transcript", "hello", "siliconflow/a/v1", nil); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, ok := store.Get(context.Background(), key, "transcript", "siliconflow/b/v1"); ok {
		t.Fatal("entry from another producer version must not be served")
	}
	if _, err := store.Load(key, "transcript"); err != nil {
		t.Fatalf("Load should still return the raw entry: %v", err)
	}
}

func TestCorruptEntryDegradesToMiss(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript", key+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	store := cache.New(dir, time.Minute, logger)

	if _, ok := store.Get(context.Background(), key, "transcript", "v1"); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
	if !strings.Contains(buf.String(), "cache_read_failed") {
		t.Fatalf("expected warning with event type, got %q", buf.String())
	}

	_, err = store.Load(key, "transcript")
	if !errors.Is(err, services.ErrCache) {
		t.Fatalf("Load should return ErrCache, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	store := newStore(t, t.TempDir())
	if _, err := store.Load(key, "transcript"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestPutRejectsEmptyPayload(t *testing.T) {
	store := newStore(t, t.TempDir())
	err := store.Put(key, "transcript", "", "v1", nil)
	if !errors.Is(err, services.ErrCache) {
		t.Fatalf("expected ErrCache, got %v", err)
	}
	if _, err := store.Load(key, "transcript"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("nothing should be stored, got %v", err)
	}
}

func TestInvalidKeyRejected(t *testing.T) {
	store := newStore(t, t.TempDir())
	for _, bad := range []string{"", "..", "a/b"} {
		if err := store.Put(bad, "transcript", "x", "v1", nil); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Put(%q) expected validation error, got %v", bad, err)
		}
	}
}

func TestValidate(t *testing.T) {
	if cache.Validate(cache.Entry{Payload: "", ProducerVersion: "v1"}, "v1") {
		t.Fatal("empty payload must be invalid")
	}
	if cache.Validate(cache.Entry{Payload: "x", ProducerVersion: "v1"}, "v2") {
		t.Fatal("version mismatch must be invalid")
	}
	if !cache.Validate(cache.Entry{Payload: "x", ProducerVersion: "v1"}, "v1") {
		t.Fatal("matching entry must be valid")
	}
}

func TestListRemoveClearStats(t *testing.T) {
	store := newStore(t, t.TempDir())
	other := "BV1yy411c7mE"
	for _, k := range []string{key, other} {
		if err := store.Put(k, "transcript", "text "+k, "v1", nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Put(key, "notes", "n", "v1", nil); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Entries != 3 || stats.ByStage["transcript"] != 2 || stats.ByStage["notes"] != 1 || stats.Bytes == 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	entries, err := store.List()
	if err != nil || len(entries) != 3 {
		t.Fatalf("List = %d entries, err %v", len(entries), err)
	}

	removed, err := store.Remove(key)
	if err != nil || removed != 2 {
		t.Fatalf("Remove = %d, err %v", removed, err)
	}
	if _, ok := store.Get(context.Background(), key, "transcript", "v1"); ok {
		t.Fatal("removed entry still served from memory")
	}

	removed, err = store.Clear()
	if err != nil || removed != 1 {
		t.Fatalf("Clear = %d, err %v", removed, err)
	}
	if _, ok := store.Get(context.Background(), other, "transcript", "v1"); ok {
		t.Fatal("cleared entry still served")
	}
}

func TestConcurrentPutsLeaveReadableEntry(t *testing.T) {
	dir := t.TempDir()
	store := newStore(t, dir)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Put(key, "transcript", strings.Repeat("x", 4096), "v1", nil); err != nil {
				t.Errorf("Put returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := newStore(t, dir).Load(key, "transcript"); err != nil {
		t.Fatalf("entry should decode after concurrent writes: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "transcript", "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}
