package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// errAlreadyRunning is returned when another instance holds the PID lock.
var errAlreadyRunning = errors.New("another instance is already running")

// ///////////////////////////////////////////////
// Single Instance
// ///////////////////////////////////////////////

// instance is a held lock on the PID file. The file reads "PID:ID"; the
// random ID keeps release from deleting a file another process rewrote.
type instance struct {
	path string
	id   string
	f    *os.File
}

// acquireInstance claims the single-instance lock. The returned release
// func must run on exit.
func acquireInstance(dp DataPaths) (release func(), err error) {
	inst, err := lockInstance(dp.PID(), uuid.NewString())
	if err != nil {
		return nil, err
	}
	return inst.release, nil
}

// lockAttempts bounds retries when the file is replaced while locking.
const lockAttempts = 3

// lockInstance opens path, takes the lock without blocking and records this
// process in it. A leftover file from a dead process is simply reused.
func lockInstance(path, id string) (*instance, error) {
	for range lockAttempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open PID file: %w", err)
		}
		if err := lockFile(f); err != nil {
			f.Close()
			if pid := holderPID(path); pid > 0 {
				return nil, fmt.Errorf("%w (pid %d)", errAlreadyRunning, pid)
			}
			return nil, errAlreadyRunning
		}
		// The previous holder may have unlinked the file between our open
		// and lock; that lock guards nothing.
		if !stillLinked(f, path) {
			_ = unlockFile(f)
			f.Close()
			continue
		}

		inst := &instance{path: path, id: id, f: f}
		if err := inst.record(); err != nil {
			_ = unlockFile(f)
			f.Close()
			return nil, err
		}
		return inst, nil
	}
	return nil, fmt.Errorf("%w: PID file keeps changing", errAlreadyRunning)
}

// stillLinked reports whether path still names the file open as f.
func stillLinked(f *os.File, path string) bool {
	opened, err := f.Stat()
	if err != nil {
		return false
	}
	named, err := os.Stat(path)
	return err == nil && os.SameFile(opened, named)
}

func (i *instance) record() error {
	if err := i.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(i.f, "%d:%s", os.Getpid(), i.id); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// release deletes the file if it still carries our ID, then drops the lock.
// Deleting first means no other process can lock the file and then lose it.
// Windows refuses to delete an open file; the leftover is reused by the
// next start.
func (i *instance) release() {
	if i.owned() {
		os.Remove(i.path)
	}
	_ = unlockFile(i.f)
	i.f.Close()
}

// owned reads the file through the locked handle, since Windows denies
// other handles while the lock is held.
func (i *instance) owned() bool {
	if _, err := i.f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	data, err := io.ReadAll(i.f)
	if err != nil {
		return false
	}
	_, id, _ := strings.Cut(string(data), ":")
	return id == i.id
}

// holderPID reads the PID of the lock holder, or 0 when it is unreadable.
// Windows denies the read while the lock is held.
func holderPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	head, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return pid
}
