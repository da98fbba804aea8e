// Package lock guards a session directory with an exclusive flock, so
// two daemons never write the same snapshot. The LOCK file records the
// holder for diagnostics; the flock itself dies with its process, so a
// leftover file from a crash never blocks the next start.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// LockHeldError is returned when another process holds the session
// lock. PID is the holder recorded in the LOCK file, zero if unreadable.
type LockHeldError struct {
	PID  int
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("session locked by pid %d (%s)", e.PID, e.Path)
}

// Lock is a held session lock. Release it before the process exits;
// the flock would be dropped by the kernel anyway, but Release also
// removes the stale LOCK file.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the exclusive lock for a session directory, creating
// the directory if needed. Returns LockHeldError when another process
// has it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(path)
		_ = f.Close()
		return nil, &LockHeldError{PID: holder, Path: path}
	}

	if err := writeHolder(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f, path: path}, nil
}

// Release drops the flock and removes the LOCK file. Safe on a nil
// receiver and safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}

// Probe reports whether a session directory's lock is currently held
// and, if so, the holder's recorded pid. A LOCK file left behind by a
// crashed process does not count as held: the probe briefly takes the
// flock, which only succeeds when the holder is gone.
func Probe(dir string) (held bool, pid int) {
	l, err := Acquire(dir)
	if err != nil {
		if e, ok := err.(*LockHeldError); ok {
			return true, e.PID
		}
		return false, 0
	}
	_ = l.Release()
	return false, 0
}

// writeHolder records "pid host started" on one line, truncating
// whatever a previous holder left.
func writeHolder(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	host, _ := os.Hostname()
	line := fmt.Sprintf("%d %s %s\n",
		os.Getpid(), host, time.Now().UTC().Format(time.RFC3339))
	_, err := f.WriteString(line)
	return err
}

func readHolder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	pid, _ := strconv.Atoi(fields[0])
	return pid
}
