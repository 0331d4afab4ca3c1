package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	r := NewRegistry()
	path := "STAGE-001.md"

	if err := r.Acquire(path, "worker-1"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if !r.IsLocked(path) {
		t.Error("IsLocked should be true after Acquire")
	}
	if err := r.Acquire(path, "worker-2"); err == nil {
		t.Fatal("second Acquire on same path should fail")
	}

	r.Release(path)
	if r.IsLocked(path) {
		t.Error("IsLocked should be false after Release")
	}
	// Release is idempotent.
	r.Release(path)
}

func TestIsLockedUnknownPath(t *testing.T) {
	r := NewRegistry()
	if r.IsLocked("never-locked.md") {
		t.Error("IsLocked on a never-acquired path should be false")
	}
}

func TestReadStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "STAGE-001.md")
	content := "---\nstatus: In Progress\ntitle: Example\n---\nBody text.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	status, err := ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if status != "In Progress" {
		t.Errorf("ReadStatus = %q, want %q", status, "In Progress")
	}
}

func TestReadStatusMissingFile(t *testing.T) {
	if _, err := ReadStatus(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
