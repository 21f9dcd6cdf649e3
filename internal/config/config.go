// Package config loads the daemon configuration from TOML with PMDECK_
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/pmdeck/internal/logger"
	"github.com/loykin/pmdeck/internal/logstore"
	"github.com/loykin/pmdeck/internal/store"
	"github.com/loykin/pmdeck/internal/store/factory"
	"github.com/loykin/pmdeck/internal/supervisor"
)

const EnvPrefix = "PMDECK"

type Config struct {
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
	UseOSEnv bool     `mapstructure:"use_os_env"`

	Server     ServerConfig       `mapstructure:"server"`
	Store      store.Config       `mapstructure:"store"`
	Registry   RegistryConfig     `mapstructure:"registry"`
	Supervisor supervisor.Options `mapstructure:"supervisor"`
	Logs       LogsConfig         `mapstructure:"logs"`
	Log        logger.Config      `mapstructure:"log"`
	Metrics    MetricsConfig      `mapstructure:"metrics"`
	History    HistoryConfig      `mapstructure:"history"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type RegistryConfig struct {
	UniqueNames bool `mapstructure:"unique_names"`
}

// LogsConfig sizes the per-process output rings and the optional file mirror.
type LogsConfig struct {
	MaxLines     int             `mapstructure:"max_lines"`
	MaxLineBytes int             `mapstructure:"max_line_bytes"`
	Dir          string          `mapstructure:"dir"`
	Rotation     logger.Rotation `mapstructure:",squash"`
}

func (l LogsConfig) Options() logstore.Options {
	return logstore.Options{
		MaxLines:     l.MaxLines,
		MaxLineBytes: l.MaxLineBytes,
		Dir:          l.Dir,
		Rotation:     l.Rotation,
	}
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HistoryConfig lists event sinks by DSN, see history/factory.
type HistoryConfig struct {
	Sinks  []string `mapstructure:"sinks"`
	Buffer int      `mapstructure:"buffer"`
}

var defaults = map[string]any{
	"env":        []string{},
	"env_files":  []string{},
	"use_os_env": true,

	"server.listen":    "127.0.0.1:9615",
	"server.base_path": "/api",
	"server.cert_file": "",
	"server.key_file":  "",

	"store.type":           "sqlite",
	"store.path":           "pmdeck.db",
	"store.dsn":            "",
	"store.max_open_conns": 0,

	"registry.unique_names": true,

	"supervisor.stop_timeout":      supervisor.DefaultStopTimeout.String(),
	"supervisor.kill_timeout":      supervisor.DefaultKillTimeout.String(),
	"supervisor.operation_timeout": supervisor.DefaultOperationTimeout.String(),
	"supervisor.request_timeout":   supervisor.DefaultRequestTimeout.String(),
	"supervisor.start_window":      "0s",
	"supervisor.poll_interval":     supervisor.DefaultPollInterval.String(),
	"supervisor.busy_policy":       string(supervisor.BusyQueue),
	"supervisor.queue_size":        supervisor.DefaultQueueSize,
	"supervisor.update_restart":    string(supervisor.UpdateRestartAuto),
	"supervisor.bulk_concurrency":  supervisor.DefaultBulkConcurrency,

	"logs.max_lines":      logstore.DefaultMaxLines,
	"logs.max_line_bytes": logstore.DefaultMaxLineBytes,
	"logs.dir":            "",
	"logs.max_size_mb":    logger.DefaultMaxSizeMB,
	"logs.max_backups":    logger.DefaultMaxBackups,
	"logs.max_age_days":   logger.DefaultMaxAgeDays,
	"logs.compress":       false,

	"log.level":        "info",
	"log.format":       logger.FormatText,
	"log.color":        false,
	"log.source":       false,
	"log.file":         "",
	"log.max_size_mb":  logger.DefaultMaxSizeMB,
	"log.max_backups":  logger.DefaultMaxBackups,
	"log.max_age_days": logger.DefaultMaxAgeDays,
	"log.compress":     false,

	"metrics.enabled": true,

	"history.sinks":  []string{},
	"history.buffer": 256,
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) { return Load("") }

// Load reads path (TOML) when it is non-empty, applies PMDECK_* overrides
// (PMDECK_SERVER_LISTEN, PMDECK_SUPERVISOR_STOP_TIMEOUT, ...) and validates
// the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if err := c.Supervisor.Validate(); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"stop_timeout":      c.Supervisor.StopTimeout,
		"kill_timeout":      c.Supervisor.KillTimeout,
		"operation_timeout": c.Supervisor.OperationTimeout,
		"request_timeout":   c.Supervisor.RequestTimeout,
		"poll_interval":     c.Supervisor.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("supervisor.%s must be positive, got %s", name, d)
		}
	}
	if c.Supervisor.StartWindow < 0 {
		return fmt.Errorf("supervisor.start_window must not be negative")
	}
	typ := strings.ToLower(strings.TrimSpace(c.Store.Type))
	if typ != "" && !slices.Contains(factory.SupportedTypes(), typ) {
		return fmt.Errorf("unsupported store.type %q (supported: %s)", c.Store.Type, strings.Join(factory.SupportedTypes(), ", "))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}
	return nil
}

// GlobalEnv returns the variables from env_files, in order, followed by the
// env list. Later entries win when the result is applied.
func (c *Config) GlobalEnv() ([]string, error) {
	var out []string
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	return append(out, c.Env...), nil
}

// LoadEnvFile parses a simple .env file and returns its "KEY=VALUE" entries
// in file order.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
			out = append(out, k+"="+v)
		}
	}
	return out, nil
}
