package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInstanceLockAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hivecore.lock")

	lock := NewInstanceLock(path)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected lock file to contain the holding pid")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestInstanceLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hivecore.lock")

	first := NewInstanceLock(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	second := NewInstanceLock(path)
	if err := second.Acquire(); err == nil {
		t.Fatal("expected second Acquire to fail while first holds the lock")
	}
}

func TestInstanceLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	lock := NewInstanceLock(filepath.Join(t.TempDir(), "unused.lock"))
	if err := lock.Release(); err != nil {
		t.Fatalf("expected Release on unacquired lock to be a no-op, got %v", err)
	}
}
