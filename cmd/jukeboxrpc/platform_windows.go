//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

// shutdownSignals stop the client gracefully. Windows delivers only
// os.Interrupt.
var shutdownSignals = []os.Signal{os.Interrupt}

// lockFile locks the first byte of f exclusively, failing at once when a
// running instance holds it.
func lockFile(f *os.File) error {
	const flags = windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, new(windows.Overlapped))
	return wrapLockErr("LockFileEx", f, err)
}

// unlockFile releases the byte locked by lockFile.
func unlockFile(f *os.File) error {
	err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
	return wrapLockErr("UnlockFileEx", f, err)
}

func wrapLockErr(op string, f *os.File, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: op, Path: f.Name(), Err: err}
}
