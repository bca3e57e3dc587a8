//go:build !windows

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// shutdownSignals stop the client gracefully.
var shutdownSignals = []os.Signal{os.Interrupt, unix.SIGTERM, unix.SIGHUP}

// lockFile takes a non-blocking exclusive flock on f. EWOULDBLOCK means a
// running instance holds it.
func lockFile(f *os.File) error {
	return flock(f, unix.LOCK_EX|unix.LOCK_NB)
}

// unlockFile drops the flock. Closing f drops it too.
func unlockFile(f *os.File) error {
	return flock(f, unix.LOCK_UN)
}

func flock(f *os.File, how int) error {
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		return &os.PathError{Op: "flock", Path: f.Name(), Err: err}
	}
	return nil
}
