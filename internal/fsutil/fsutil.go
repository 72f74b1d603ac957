// Package fsutil provides the filesystem helpers shared by the state store
// and the pipeline steps: existence checks, directory creation, and atomic
// file replacement for durable records.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Exists checks if a file or directory exists.
func Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// EnsureDir creates a directory and all necessary parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// WriteFileAtomic writes data to name via a temporary file in the same
// directory followed by a rename, so readers never observe a partial write.
// The parent directory is created if needed.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := EnsureDir(dir); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(name)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file to %s: %w", name, err)
	}
	return nil
}

// GlobSorted returns the paths matching pattern in lexical order.
// filepath.Glob already sorts, but we depend on the ordering for
// deterministic processing so the sort is explicit here.
func GlobSorted(pattern string) ([]string, error) {
	hits, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(hits)
	return hits, nil
}

// FindFirst returns the first path matching any of the patterns under dir,
// trying patterns in order. Used to locate tool outputs whose exact names
// vary between tool versions (e.g. DEM products).
func FindFirst(dir string, patterns ...string) (string, error) {
	for _, pat := range patterns {
		hits, err := GlobSorted(filepath.Join(dir, pat))
		if err != nil {
			return "", err
		}
		if len(hits) > 0 {
			return hits[0], nil
		}
	}
	return "", fmt.Errorf("no file matching %v under %s", patterns, dir)
}
