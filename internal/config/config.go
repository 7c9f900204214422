// Package config manages global (~/.config/memloop/config.toml) and
// per-project (.memloop/config.toml) configuration for memloop.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// GlobalConfig holds user-wide settings.
type GlobalConfig struct {
	LogLevel  string          `toml:"log_level"`
	Session   SessionConfig   `toml:"session"`
	Retention RetentionConfig `toml:"retention"`
	Notes     NotesConfig     `toml:"notes"`
}

// SessionConfig tunes the sliding window.
type SessionConfig struct {
	MaxMessages          int `toml:"max_messages"`
	CompressionThreshold int `toml:"compression_threshold"`
}

// RetentionConfig controls the cleanup sweep. ArchiveAfterDays is the idle
// threshold for archiving active sessions; the sweep schedule is a cron
// expression used by `memloop serve`.
type RetentionConfig struct {
	ArchiveAfterDays int    `toml:"archive_after_days"`
	SweepSchedule    string `toml:"sweep_schedule"`
}

// NotesConfig locates the memory-bank notes directory, relative to the
// project's .memloop directory unless absolute.
type NotesConfig struct {
	Dir string `toml:"dir"`
}

// ProjectConfig holds per-project overrides stored in .memloop/config.toml.
type ProjectConfig struct {
	Project   ProjectMeta     `toml:"project"`
	Session   SessionConfig   `toml:"session"`
	Retention RetentionConfig `toml:"retention"`
}

type ProjectMeta struct {
	Name string `toml:"name"`
}

// DefaultGlobal returns sensible defaults.
func DefaultGlobal() GlobalConfig {
	return GlobalConfig{
		LogLevel: "info",
		Session: SessionConfig{
			MaxMessages:          200,
			CompressionThreshold: 50,
		},
		Retention: RetentionConfig{
			ArchiveAfterDays: 30,
			SweepSchedule:    "0 3 * * *", // daily at 03:00
		},
		Notes: NotesConfig{
			Dir: "notes",
		},
	}
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "memloop", "config.toml"), nil
}

// LoadGlobal loads the global config, applying defaults for any missing
// values. MEMLOOP_LOG_LEVEL overrides the configured log level.
func LoadGlobal() (cfg GlobalConfig, err error) {
	cfg = DefaultGlobal()

	defer func() {
		if v := os.Getenv("MEMLOOP_LOG_LEVEL"); v != "" {
			cfg.LogLevel = v
		}
	}()

	path, err := GlobalConfigPath()
	if err != nil {
		return cfg, nil // Return defaults if we can't determine home dir.
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // File doesn't exist yet — use defaults.
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: load global: %w", err)
	}

	return cfg, nil
}

// LoadProject loads .memloop/config.toml from the given project root.
func LoadProject(root string) (ProjectConfig, error) {
	var cfg ProjectConfig
	path := filepath.Join(root, ".memloop", "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: load project: %w", err)
	}
	return cfg, nil
}

// Load returns the effective config for a project root: global settings with
// project overrides applied.
func Load(root string) (GlobalConfig, error) {
	global, err := LoadGlobal()
	if err != nil {
		global = DefaultGlobal()
	}

	project, err := LoadProject(root)
	if err != nil {
		return global, err
	}
	if project.Session.MaxMessages > 0 {
		global.Session.MaxMessages = project.Session.MaxMessages
	}
	if project.Session.CompressionThreshold > 0 {
		global.Session.CompressionThreshold = project.Session.CompressionThreshold
	}
	if project.Retention.ArchiveAfterDays > 0 {
		global.Retention.ArchiveAfterDays = project.Retention.ArchiveAfterDays
	}
	if project.Retention.SweepSchedule != "" {
		global.Retention.SweepSchedule = project.Retention.SweepSchedule
	}

	return global, nil
}

// SaveProject writes the project config to .memloop/config.toml.
func SaveProject(root string, cfg ProjectConfig) error {
	dir := filepath.Join(root, ".memloop")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir project: %w", err)
	}

	path := filepath.Join(dir, "config.toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create project config: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ProjectDBPath returns the path to the project's SQLite database.
func ProjectDBPath(root string) string {
	return filepath.Join(root, ".memloop", "memloop.db")
}

// NotesDirPath resolves the notes directory for a project root.
func NotesDirPath(root string, cfg GlobalConfig) string {
	if filepath.IsAbs(cfg.Notes.Dir) {
		return cfg.Notes.Dir
	}
	return filepath.Join(root, ".memloop", cfg.Notes.Dir)
}
