package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the global ~/.wsync/config.toml.
type Config struct {
	DefaultSession string         `toml:"default_session"`
	Snapshot       SnapshotConfig `toml:"snapshot"`
	Store          StoreConfig    `toml:"store"`
}

// SnapshotConfig controls snapshot persistence.
type SnapshotConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend"`
	// Interval is a duration string; how often the autosaver writes.
	Interval string `toml:"interval"`
	// Compress enables zstd compression of the snapshot body.
	Compress bool `toml:"compress"`
}

// StoreConfig controls in-memory collection sizing.
type StoreConfig struct {
	// RepoCapacity is the soft cap for bounded collections. Zero keeps
	// the built-in default.
	RepoCapacity int `toml:"repo_capacity"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Snapshot: SnapshotConfig{
			Backend:  BackendFile,
			Interval: "30s",
		},
	}
}

// SaveInterval parses the autosave interval, falling back to 30 seconds
// on an empty or malformed value.
func (c *SnapshotConfig) SaveInterval() time.Duration {
	if c.Interval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate rejects values Load cannot interpret.
func (c *Config) Validate() error {
	switch c.Snapshot.Backend {
	case "", BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}
	if c.Snapshot.Interval != "" {
		if _, err := time.ParseDuration(c.Snapshot.Interval); err != nil {
			return fmt.Errorf("parse snapshot interval: %w", err)
		}
	}
	return nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
