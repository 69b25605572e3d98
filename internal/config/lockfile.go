package config

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// InstanceLock prevents two hivecore processes from sharing one data
// directory, generalizing the teacher's InstanceManager
// (internal/instance/manager.go + lock_windows.go), which guards the
// same single-instance invariant with a Windows-only handle. hivecore
// targets Unix server deployments, so the portable primitive is an
// advisory flock on a PID file via golang.org/x/sys/unix rather than
// the teacher's windows.LockFileEx.
type InstanceLock struct {
	path string
	file *os.File
}

// NewInstanceLock records the lock file path without opening or
// acquiring it; Acquire opens (creating if needed) the file.
func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{path: path}
}

// Acquire takes an exclusive, non-blocking flock and writes the current
// PID into the file. It fails with a descriptive error if another
// process already holds the lock.
func (l *InstanceLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("another hivecore instance holds %s: %w", l.path, err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return fmt.Errorf("write pid to lock file: %w", err)
	}

	l.file = f
	return nil
}

// Release drops the flock and closes the file. Safe to call on a lock
// that was never successfully acquired.
func (l *InstanceLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}
