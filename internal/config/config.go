// Package config loads timelinectl configuration from a file, the
// environment and built-in defaults, in that order of precedence:
// environment over file over defaults.
//
// Environment variables use the TIMELINE_ prefix with dots replaced by
// underscores, for example TIMELINE_STORE_PATH or TIMELINE_SYNC_STRATEGY.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	timelinesync "github.com/clipforge/timeline/internal/timeline/sync"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "TIMELINE"

// Config is the full configuration surface.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// StoreConfig controls the backing database and the storage budget.
type StoreConfig struct {
	Path             string        `mapstructure:"path"`
	BudgetBytes      int64         `mapstructure:"budget_bytes"`
	CleanupThreshold float64       `mapstructure:"cleanup_threshold"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// SyncConfig controls conflict handling.
type SyncConfig struct {
	Strategy       string        `mapstructure:"strategy"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConflictWindow time.Duration `mapstructure:"conflict_window"`
}

// DaemonConfig controls the background daemon.
type DaemonConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	ChangeRetention time.Duration `mapstructure:"change_retention"`
}

// DashboardConfig controls the live dashboard. Port 0 disables it.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
	// AllowedOrigins are host patterns (path.Match syntax) accepted from
	// cross-origin WebSocket clients. Empty allows same-origin only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig controls log output. An empty File logs to stderr only.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:             filepath.Join(".timeline", "timeline.db"),
			BudgetBytes:      50 * 1024 * 1024,
			CleanupThreshold: 0.8,
			MaxAge:           30 * 24 * time.Hour,
		},
		Sync: SyncConfig{
			Strategy:       string(timelinesync.StrategyMerge),
			Timeout:        5 * time.Second,
			ConflictWindow: 5 * time.Second,
		},
		Daemon: DaemonConfig{
			PollInterval:    2 * time.Second,
			CleanupSchedule: "@hourly",
			ChangeRetention: 24 * time.Hour,
		},
		Dashboard: DashboardConfig{
			Port:           0,
			AllowedOrigins: []string{},
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.budget_bytes", d.Store.BudgetBytes)
	v.SetDefault("store.cleanup_threshold", d.Store.CleanupThreshold)
	v.SetDefault("store.max_age", d.Store.MaxAge)
	v.SetDefault("sync.strategy", d.Sync.Strategy)
	v.SetDefault("sync.timeout", d.Sync.Timeout)
	v.SetDefault("sync.conflict_window", d.Sync.ConflictWindow)
	v.SetDefault("daemon.poll_interval", d.Daemon.PollInterval)
	v.SetDefault("daemon.cleanup_schedule", d.Daemon.CleanupSchedule)
	v.SetDefault("daemon.change_retention", d.Daemon.ChangeRetention)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("dashboard.allowed_origins", d.Dashboard.AllowedOrigins)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads configuration. With an empty path it looks for timeline.yaml
// (or .toml / .json) in the working directory and in
// $HOME/.config/timeline; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("timeline")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "timeline"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	if c.Store.BudgetBytes <= 0 {
		errs = append(errs, fmt.Errorf("store.budget_bytes must be positive"))
	}
	if c.Store.CleanupThreshold <= 0 || c.Store.CleanupThreshold > 1 {
		errs = append(errs, fmt.Errorf("store.cleanup_threshold must be in (0, 1], got %v", c.Store.CleanupThreshold))
	}
	if c.Store.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("store.max_age must be positive"))
	}
	if _, err := timelinesync.ParseStrategy(c.Sync.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("sync.strategy: %w", err))
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.timeout must be positive"))
	}
	if c.Sync.ConflictWindow <= 0 {
		errs = append(errs, fmt.Errorf("sync.conflict_window must be positive"))
	}
	if c.Daemon.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("daemon.poll_interval must be positive"))
	}
	if _, err := cron.ParseStandard(c.Daemon.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("daemon.cleanup_schedule: %w", err))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port))
	}
	return errors.Join(errs...)
}

// Strategy returns the configured resolution strategy. It assumes the
// config has been validated.
func (c *Config) Strategy() timelinesync.Strategy {
	return timelinesync.Strategy(c.Sync.Strategy)
}
