package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level reporter configuration.
type Config struct {
	Platform  PlatformConfig  `koanf:"platform"`
	Reports   ReportsConfig   `koanf:"reports"`
	State     StateConfig     `koanf:"state"`
	Mail      MailConfig      `koanf:"mail"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
}

type PlatformConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	ProjectID      string `koanf:"project_id"`
	TimezoneOffset int    `koanf:"timezone_offset"` // hours east of UTC
	RequestTimeout string `koanf:"request_timeout"`
}

type ReportsConfig struct {
	DefinitionsDir string `koanf:"definitions_dir"`
	OutputDir      string `koanf:"output_dir"`
	Retention      string `koanf:"retention"`
	WorkerCount    int    `koanf:"worker_count"`
	Placeholder    string `koanf:"placeholder"` // written where no data is available

	EvaluateFormulas bool `koanf:"evaluate_formulas"`
}

type StateConfig struct {
	Backend      string `koanf:"backend"` // file | postgres | sqlite
	Dir          string `koanf:"dir"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type MailConfig struct {
	PollInterval string `koanf:"poll_interval"`
	MaxAttempts  int    `koanf:"max_attempts"`
}

type SchedulerConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Interval string `koanf:"interval"`
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Port    int    `koanf:"port"`
	Host    string `koanf:"host"`
	Mode    string `koanf:"mode"` // debug | release
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Location is the fixed-offset zone all report windows are computed in.
func (c PlatformConfig) Location() *time.Location {
	if c.TimezoneOffset == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.TimezoneOffset), c.TimezoneOffset*3600)
}

func (c PlatformConfig) Timeout() time.Duration {
	return mustDuration(c.RequestTimeout)
}

func (c ReportsConfig) RetentionPeriod() time.Duration {
	return mustDuration(c.Retention)
}

func (c MailConfig) Interval() time.Duration {
	return mustDuration(c.PollInterval)
}

func (c SchedulerConfig) Tick() time.Duration {
	return mustDuration(c.Interval)
}

// SlogLevel maps log.level onto slog.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// mustDuration is only used on values Validate has already parsed.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Platform.BaseURL) == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.Platform.TimezoneOffset < -12 || c.Platform.TimezoneOffset > 14 {
		return fmt.Errorf("invalid platform.timezone_offset %d (must be -12..14)", c.Platform.TimezoneOffset)
	}
	if err := positiveDuration("platform.request_timeout", c.Platform.RequestTimeout); err != nil {
		return err
	}

	if strings.TrimSpace(c.Reports.DefinitionsDir) == "" {
		return fmt.Errorf("reports.definitions_dir is required")
	}
	if strings.TrimSpace(c.Reports.OutputDir) == "" {
		return fmt.Errorf("reports.output_dir is required")
	}
	if err := positiveDuration("reports.retention", c.Reports.Retention); err != nil {
		return err
	}
	if c.Reports.WorkerCount <= 0 {
		return fmt.Errorf("reports.worker_count must be > 0")
	}

	switch c.State.Backend {
	case "file":
		if strings.TrimSpace(c.State.Dir) == "" {
			return fmt.Errorf("state.dir is required for the file backend")
		}
	case "postgres", "sqlite":
		if strings.TrimSpace(c.State.DSN) == "" {
			return fmt.Errorf("state.dsn is required for the %s backend", c.State.Backend)
		}
		if c.State.MaxOpenConns <= 0 {
			return fmt.Errorf("state.max_open_conns must be > 0")
		}
	default:
		return fmt.Errorf("unsupported state.backend %q (file, postgres, sqlite)", c.State.Backend)
	}

	if err := positiveDuration("mail.poll_interval", c.Mail.PollInterval); err != nil {
		return err
	}
	if c.Mail.MaxAttempts <= 0 {
		return fmt.Errorf("mail.max_attempts must be > 0")
	}

	if err := positiveDuration("scheduler.interval", c.Scheduler.Interval); err != nil {
		return err
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
		}
		if strings.TrimSpace(c.Server.Host) == "" {
			return fmt.Errorf("server.host is required")
		}
		if c.Server.Mode != "debug" && c.Server.Mode != "release" {
			return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q (debug, info, warn, error)", c.Log.Level)
	}

	return nil
}

func positiveDuration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	return nil
}

// Load parses config from defaults, an optional YAML file and REPORTER_ env vars, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"platform.base_url":         "http://localhost:3000/api",
		"platform.timezone_offset":  0,
		"platform.request_timeout":  "30s",
		"reports.definitions_dir":   "./config/reports",
		"reports.output_dir":        "./tmp_reports",
		"reports.retention":         "720h",
		"reports.worker_count":      4,
		"reports.placeholder":       "NAN",
		"reports.evaluate_formulas": true,
		"state.backend":             "file",
		"state.dir":                 "./tmp_reports/state",
		"state.max_open_conns":      5,
		"state.auto_migrate":        true,
		"mail.poll_interval":        "20s",
		"mail.max_attempts":         30,
		"scheduler.enabled":         true,
		"scheduler.interval":        "1m",
		"server.enabled":            true,
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.mode":               "release",
		"log.level":                 "info",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("REPORTER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REPORTER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
