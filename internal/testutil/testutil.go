// Package testutil holds fixture tables, an in-memory workbook writer and a
// mock source shared by the biobank package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempFile writes content to name inside a per-test directory and returns
// the path. The directory goes away with the test.
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}
