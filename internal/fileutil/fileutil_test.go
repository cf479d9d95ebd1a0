package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "entry.json")

	if err := WriteFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("content mismatch: got %q", got)
	}
	assertNoTempFiles(t, filepath.Dir(path))
}

func TestCreateUniqueNeverOverwrites(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateUnique(dir, "BV1xx411c7mD_20260101_120000", ".txt", []byte("one"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	second, err := CreateUnique(dir, "BV1xx411c7mD_20260101_120000", ".txt", []byte("two"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	third, err := CreateUnique(dir, "BV1xx411c7mD_20260101_120000", ".txt", []byte("three"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Base(first) != "BV1xx411c7mD_20260101_120000.txt" {
		t.Fatalf("unexpected first name %q", first)
	}
	if filepath.Base(second) != "BV1xx411c7mD_20260101_120000_2.txt" {
		t.Fatalf("unexpected second name %q", second)
	}
	if filepath.Base(third) != "BV1xx411c7mD_20260101_120000_3.txt" {
		t.Fatalf("unexpected third name %q", third)
	}
	for path, want := range map[string]string{first: "one", second: "two", third: "three"} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Fatalf("%s: got %q want %q", path, got, want)
		}
	}
	assertNoTempFiles(t, dir)
}

func TestCreateUniqueSetsMode(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateUnique(dir, "report", ".txt", []byte("x"), 0o600)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}
