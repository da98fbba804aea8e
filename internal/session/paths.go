package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wsync")
}

// SessionsDir returns the directory holding all session directories.
func SessionsDir() string {
	return filepath.Join(BaseDir(), "sessions")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(SessionsDir(), name)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// SessionDBPath returns the whatsmeow session.db path.
func SessionDBPath(name string) string {
	return filepath.Join(Dir(name), "session.db")
}

// SnapshotPath returns the state snapshot path for the file backend.
func SnapshotPath(name string) string {
	return filepath.Join(Dir(name), "snapshot.bin")
}

// SnapshotDBPath returns the state snapshot database path for the
// sqlite backend.
func SnapshotDBPath(name string) string {
	return filepath.Join(Dir(name), "wsync.db")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wsyncd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// List returns the names of every session that has a directory on disk.
// A missing sessions directory is not an error, just an empty list.
func List() ([]string, error) {
	entries, err := os.ReadDir(SessionsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
