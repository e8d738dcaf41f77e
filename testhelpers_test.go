package lardfs

import (
	"os"
	"testing"
)

// newTestImage formats a fresh image of the given geometry in a
// temporary file and returns the attached Filesystem, for white-box
// tests that need direct access to the unexported engines.
func newTestImage(t *testing.T, capacity int64, ssize uint32, ifactor float64) *Filesystem {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "lardfs-*.img")
	if err != nil {
		t.Fatalf("create temp image: %s", err)
	}
	t.Cleanup(func() { f.Close() })

	geo, err := ComputeGeometry(capacity, ssize, ifactor)
	if err != nil {
		t.Fatalf("compute geometry: %s", err)
	}
	fsys, err := FormatImage(f, geo)
	if err != nil {
		t.Fatalf("format image: %s", err)
	}
	return fsys
}

// smallTestImage is a convenience wrapper around newTestImage sized for
// tests that just need a handful of files, not a specific geometry.
func smallTestImage(t *testing.T) *Filesystem {
	t.Helper()
	return newTestImage(t, 64*1024, 512, 0.2)
}
