// Package config loads the clipring YAML configuration and applies
// environment and flag overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/cycle"
	"github.com/spideyz0r/clipring/pkg/watcher"
)

const (
	envPrefix = "CLIPRING"
	appDir    = ".clipring"
)

// Cache for config to avoid repeated file reads.
var (
	cacheMutex    sync.RWMutex
	cachedConfig  *Config
	cachedPath    string
	cachedModTime time.Time
)

// Config holds the application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Retention   RetentionConfig   `yaml:"retention"`
	Hotkeys     HotkeysConfig     `yaml:"hotkeys"`
	Cycle       CycleConfig       `yaml:"cycle"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Backup      BackupConfig      `yaml:"backup"`
	Log         LogConfig         `yaml:"log"`
	Autostart   bool              `yaml:"autostart"` // Launch at login (registered by the installer)
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"` // Path to the live SQLite store; the archive shard sits beside it
}

// RetentionConfig bounds how much history is kept.
type RetentionConfig struct {
	MaxItems         int    `yaml:"max_items"`          // 0 = unlimited
	MaxSize          string `yaml:"max_size"`           // e.g. "10 GiB"; empty = unlimited
	ArchiveAfterDays int    `yaml:"archive_after_days"` // 0 = never archive
}

// HotkeysConfig holds the cycling bindings, e.g. "alt+w".
type HotkeysConfig struct {
	Next string `yaml:"next"`
	Prev string `yaml:"prev"`
}

// CycleConfig holds the cycling controller timings.
type CycleConfig struct {
	IdleReset    time.Duration `yaml:"idle_reset"`
	ReleasePoll  time.Duration `yaml:"release_poll"`
	ReleaseGrace time.Duration `yaml:"release_grace"`
	PasteDelay   time.Duration `yaml:"paste_delay"`
	AutoPaste    bool          `yaml:"auto_paste"`
}

// WatcherConfig holds the change watcher timings.
type WatcherConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	Debounce      time.Duration `yaml:"debounce"`
	ReadAttempts  int           `yaml:"read_attempts"`
	SelfWriteHold time.Duration `yaml:"self_write_hold"` // How long our own clipboard writes are ignored
}

// MaintenanceConfig schedules retention and housekeeping in the daemon.
type MaintenanceConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// BackupConfig holds backup-related configuration.
type BackupConfig struct {
	Dir  string `yaml:"dir"`
	Keep int    `yaml:"keep"` // 0 = keep all
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level    string `yaml:"level"`     // debug, info, warn, error
	Format   string `yaml:"format"`    // auto, text, json
	Dir      string `yaml:"dir"`       // Daily log files are written here when set
	KeepDays int    `yaml:"keep_days"` // Log files older than this are removed
}

// Dir returns the clipring directory under home.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is unavailable
		home = "."
	}
	return filepath.Join(home, appDir)
}

// DefaultPath returns ~/.clipring/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the default configuration.
func Default() *Config {
	dir := Dir()

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "history.db"),
		},
		Retention: RetentionConfig{
			MaxItems:         10000,
			MaxSize:          "10 GiB",
			ArchiveAfterDays: 30,
		},
		Hotkeys: HotkeysConfig{
			Next: "alt+w",
			Prev: "alt+s",
		},
		Cycle: CycleConfig{
			IdleReset:    3 * time.Second,
			ReleasePoll:  50 * time.Millisecond,
			ReleaseGrace: 400 * time.Millisecond,
			PasteDelay:   150 * time.Millisecond,
			AutoPaste:    true,
		},
		Watcher: WatcherConfig{
			PollInterval:  2 * time.Second,
			Debounce:      500 * time.Millisecond,
			ReadAttempts:  5,
			SelfWriteHold: clipboard.DefaultHold,
		},
		Maintenance: MaintenanceConfig{
			Interval: time.Hour,
		},
		Backup: BackupConfig{
			Dir:  filepath.Join(dir, "backups"),
			Keep: 5,
		},
		Log: LogConfig{
			Level:    "info",
			Format:   "auto",
			Dir:      filepath.Join(dir, "logs"),
			KeepDays: 7,
		},
	}
}

// Load loads configuration from file, falling back to defaults
// Uses a cache to avoid repeated file reads if the file hasn't changed
func Load(path string) (*Config, error) {
	cacheMutex.RLock()
	if cachedConfig != nil && cachedPath == path {
		if stat, err := os.Stat(path); err == nil {
			if stat.ModTime().Equal(cachedModTime) {
				defer cacheMutex.RUnlock()
				return cachedConfig, nil
			}
		}
	}
	cacheMutex.RUnlock()

	cacheMutex.Lock()
	defer cacheMutex.Unlock()

	cfg := Default()

	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		cachedConfig = cfg
		cachedPath = path
		cachedModTime = time.Time{}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cachedConfig = cfg
	cachedPath = path
	cachedModTime = stat.ModTime()

	return cfg, nil
}

// LoadDefault loads configuration from the default path
func LoadDefault() (*Config, error) {
	return Load(DefaultPath())
}

// ClearCache clears the configuration cache, forcing a reload on next Load()
func ClearCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	cachedConfig = nil
	cachedPath = ""
	cachedModTime = time.Time{}
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path cannot be empty"))
	}
	if c.Retention.MaxItems < 0 {
		errs = append(errs, fmt.Errorf("retention.max_items must not be negative: %d", c.Retention.MaxItems))
	}
	if _, err := c.MaxSizeBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Retention.ArchiveAfterDays < 0 {
		errs = append(errs, fmt.Errorf("retention.archive_after_days must not be negative: %d", c.Retention.ArchiveAfterDays))
	}
	if _, _, err := c.Bindings(); err != nil {
		errs = append(errs, err)
	}
	if c.Watcher.ReadAttempts < 1 {
		errs = append(errs, fmt.Errorf("watcher.read_attempts must be at least 1: %d", c.Watcher.ReadAttempts))
	}
	if c.Backup.Keep < 0 {
		errs = append(errs, fmt.Errorf("backup.keep must not be negative: %d", c.Backup.Keep))
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	return errors.Join(errs...)
}

// MaxSizeBytes parses retention.max_size. Zero means unlimited.
func (c *Config) MaxSizeBytes() (int64, error) {
	s := strings.TrimSpace(c.Retention.MaxSize)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid retention.max_size %q: %w", c.Retention.MaxSize, err)
	}
	return int64(n), nil
}

// Bindings parses the cycling hotkeys.
func (c *Config) Bindings() (next, prev cycle.Binding, err error) {
	if next, err = cycle.ParseBinding(c.Hotkeys.Next); err != nil {
		return next, prev, fmt.Errorf("hotkeys.next: %w", err)
	}
	if prev, err = cycle.ParseBinding(c.Hotkeys.Prev); err != nil {
		return next, prev, fmt.Errorf("hotkeys.prev: %w", err)
	}
	return next, prev, nil
}

// CycleSettings converts the cycle section for the controller.
func (c *Config) CycleSettings() cycle.Config {
	cfg := cycle.DefaultConfig()
	if c.Cycle.IdleReset > 0 {
		cfg.IdleReset = c.Cycle.IdleReset
	}
	if c.Cycle.ReleasePoll > 0 {
		cfg.ReleasePoll = c.Cycle.ReleasePoll
	}
	cfg.PasteDelay = max(c.Cycle.PasteDelay, 0)
	cfg.AutoPaste = c.Cycle.AutoPaste
	return cfg
}

// WatcherSettings converts the watcher section for the change watcher.
func (c *Config) WatcherSettings() watcher.Config {
	cfg := watcher.DefaultConfig()
	if c.Watcher.PollInterval > 0 {
		cfg.PollInterval = c.Watcher.PollInterval
	}
	cfg.Debounce = max(c.Watcher.Debounce, 0)
	if c.Watcher.ReadAttempts > 0 {
		cfg.ReadAttempts = c.Watcher.ReadAttempts
	}
	return cfg
}

// NewViper returns a viper instance reading CLIPRING_* environment
// variables, e.g. CLIPRING_DATABASE_PATH.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v (from flags or environment)
// over the file configuration and validates the result.
//
// Precedence (lowest → highest): defaults → config file → CLIPRING_* env vars → flags
func (c *Config) ApplyOverrides(v *viper.Viper) error {
	strs := map[string]*string{
		"database.path":      &c.Database.Path,
		"retention.max_size": &c.Retention.MaxSize,
		"hotkeys.next":       &c.Hotkeys.Next,
		"hotkeys.prev":       &c.Hotkeys.Prev,
		"backup.dir":         &c.Backup.Dir,
		"log.level":          &c.Log.Level,
		"log.format":         &c.Log.Format,
		"log.dir":            &c.Log.Dir,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	ints := map[string]*int{
		"retention.max_items":          &c.Retention.MaxItems,
		"retention.archive_after_days": &c.Retention.ArchiveAfterDays,
		"backup.keep":                  &c.Backup.Keep,
	}
	for key, dst := range ints {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	if v.IsSet("cycle.auto_paste") {
		c.Cycle.AutoPaste = v.GetBool("cycle.auto_paste")
	}
	if v.IsSet("watcher.poll_interval") {
		c.Watcher.PollInterval = v.GetDuration("watcher.poll_interval")
	}

	return c.Validate()
}
