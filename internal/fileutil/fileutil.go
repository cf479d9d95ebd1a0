// Package fileutil holds the file-writing primitives shared by the cache and
// the report writer.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// maxSuffix bounds the numbered-name search in CreateUnique.
const maxSuffix = 1000

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, so readers see either the old content or the new, never a partial
// file. Missing parent directories are created.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmpPath, err := writeTemp(dir, "."+filepath.Base(path)+".*.tmp", data, mode)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// CreateUnique writes data to dir/<stem><ext> without ever replacing an
// existing file. When the name is taken it tries <stem>_2<ext>, <stem>_3<ext>
// and so on. The content is written completely to a temp file first and then
// hard-linked to the chosen name. It returns the path written.
func CreateUnique(dir, stem, ext string, data []byte, mode os.FileMode) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	tmpPath, err := writeTemp(dir, "."+stem+".*.tmp", data, mode)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpPath)

	for n := 1; n <= maxSuffix; n++ {
		name := stem + ext
		if n > 1 {
			name = stem + "_" + strconv.Itoa(n) + ext
		}
		target := filepath.Join(dir, name)
		err := os.Link(tmpPath, target)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("link %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("no free name for %s%s after %d attempts", stem, ext, maxSuffix)
}

func writeTemp(dir, pattern string, data []byte, mode os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(op string, err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%s temp file: %w", op, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmpPath, nil
}
