package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ImportConfig bounds recurrence expansion for iCalendar imports.
type ImportConfig struct {
	// HorizonDays limits recurring occurrences to this many days from now.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
	// MaxOccurrences caps the occurrences produced for a single VEVENT.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`
	// CacheDir keeps the last body and validators of calendars imported by URL.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// CaptureConfig controls the scheduled screenshot of the public board.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Schedule is a cron spec (e.g. "*/10 * * * *").
	Schedule string `yaml:"schedule" json:"schedule"`
	// Output is the PNG path written on every capture.
	Output         string `yaml:"output" json:"output"`
	Width          int    `yaml:"width" json:"width"`
	Height         int    `yaml:"height" json:"height"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the web front.
	Listen string `yaml:"listen" json:"listen"`

	// BackendURL is the base URL of the booking backend, e.g. "http://127.0.0.1:5000".
	BackendURL string `yaml:"backend_url" json:"backend_url"`

	// Timezone is the IANA zone event dates and times are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// CSRFKey is a hex-encoded 32 byte secret for form protection.
	CSRFKey string `yaml:"csrf_key" json:"-"`

	// SecureCookies marks cookies Secure and expects HTTPS in front.
	SecureCookies bool `yaml:"secure_cookies" json:"secure_cookies"`

	// SnapshotIdleMinutes is how long a viewer's cached event list survives
	// without requests.
	SnapshotIdleMinutes int `yaml:"snapshot_idle_minutes" json:"snapshot_idle_minutes"`

	// Janitor is the cron spec for evicting idle snapshots.
	Janitor string `yaml:"janitor" json:"janitor"`

	Import  ImportConfig  `yaml:"import" json:"import"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`
}

// DefaultConfig returns an in-memory default configuration.
// The CSRF key is left empty; Load generates one on first run.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		BackendURL:          "http://127.0.0.1:5000",
		Timezone:            "Europe/London",
		LogLevel:            "info",
		SnapshotIdleMinutes: 30,
		Janitor:             "*/5 * * * *",
		Import: ImportConfig{
			HorizonDays:    90,
			MaxOccurrences: 52,
			CacheDir:       "./cache/ics",
		},
		Capture: CaptureConfig{
			Enabled:        false,
			Schedule:       "*/10 * * * *",
			Output:         "./board.png",
			Width:          1280,
			Height:         1600,
			TimeoutSeconds: 30,
		},
	}
}

// Normalize fills in missing/zero values so that partially-filled files
// still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.BackendURL == "" {
		c.BackendURL = d.BackendURL
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.SnapshotIdleMinutes <= 0 {
		c.SnapshotIdleMinutes = d.SnapshotIdleMinutes
	}
	if c.Janitor == "" {
		c.Janitor = d.Janitor
	}
	if c.Import.HorizonDays <= 0 {
		c.Import.HorizonDays = d.Import.HorizonDays
	}
	if c.Import.MaxOccurrences <= 0 {
		c.Import.MaxOccurrences = d.Import.MaxOccurrences
	}
	if c.Import.CacheDir == "" {
		c.Import.CacheDir = d.Import.CacheDir
	}
	if c.Capture.Schedule == "" {
		c.Capture.Schedule = d.Capture.Schedule
	}
	if c.Capture.Output == "" {
		c.Capture.Output = d.Capture.Output
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = d.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = d.Capture.Height
	}
	if c.Capture.TimeoutSeconds <= 0 {
		c.Capture.TimeoutSeconds = d.Capture.TimeoutSeconds
	}
}

// Validate reports configuration values the server cannot start with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend_url %q must be an absolute http(s) URL", c.BackendURL)
	}
	if _, err := c.CSRFKeyBytes(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// CSRFKeyBytes decodes the CSRF secret.
func (c *Config) CSRFKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.CSRFKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("csrf_key must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SnapshotIdle is SnapshotIdleMinutes as a duration.
func (c *Config) SnapshotIdle() time.Duration {
	return time.Duration(c.SnapshotIdleMinutes) * time.Minute
}

func generateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config with a fresh CSRF key
//     is written with 0600 perms and returned.
//   - If the file exists, it is read and normalized. A missing CSRF key is
//     generated and persisted so form tokens survive restarts.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if cfg.CSRFKey, err = generateKey(); err != nil {
				return nil, err
			}
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	if cfg.CSRFKey == "" {
		if cfg.CSRFKey, err = generateKey(); err != nil {
			return nil, err
		}
		if err := Save(path, &cfg); err != nil {
			return &cfg, err
		}
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
