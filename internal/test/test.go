// Package test holds fixture helpers shared by tests.
package test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// FixtureDir returns the repository's testdata directory.
func FixtureDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata")
}

// Fixture returns the path of a file in testdata.
func Fixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(FixtureDir(t), name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("missing fixture %s: %v", path, err)
	}
	return path
}

// ReadGolden returns the contents of a golden file in testdata.
func ReadGolden(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(FixtureDir(t), name)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}
	return string(b)
}

// WriteTemp writes content to a file in a fresh temporary directory and
// returns its path.
func WriteTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
