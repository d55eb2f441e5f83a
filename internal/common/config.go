package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Portal      PortalConfig     `toml:"portal"`
	Dispatcher  DispatcherConfig `toml:"dispatcher"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

// PortalConfig describes the target report form: where it lives and how to
// locate the session token and option list inside it. Selectors and auxiliary
// form fields are site configuration, not code.
type PortalConfig struct {
	Endpoint        string              `toml:"endpoint" validate:"required,url"`     // Report form URL (GET and POST target)
	UserAgent       string              `toml:"user_agent"`                           // User agent sent on every request
	RequestTimeout  string              `toml:"request_timeout"`                      // HTTP request timeout, e.g. "30s"
	RateLimit       float64             `toml:"rate_limit"`                           // Max requests per second to the portal
	TokenSelector   string              `toml:"token_selector" validate:"required"`   // CSS selector for the hidden session token input
	OptionsSelector string              `toml:"options_selector" validate:"required"` // CSS selector for the dynamic option <select>
	SelectionField  string              `toml:"selection_field" validate:"required"`  // Form field name carrying the multi-valued selection
	ExtraFields     map[string][]string `toml:"extra_fields"`                         // Fixed auxiliary form fields, submitted verbatim
}

// DispatcherConfig tunes the worker loop
type DispatcherConfig struct {
	PollInterval   string `toml:"poll_interval"`   // e.g. "2s" - how often workers poll for claimable tasks
	Concurrency    int    `toml:"concurrency"`     // Number of concurrent worker loops
	TaskTimeout    string `toml:"task_timeout"`    // Per-task wall-clock budget, e.g. "5m"
	LeaseDuration  string `toml:"lease_duration"`  // How long a claim is valid before the reaper may fail it
	ReaperSchedule string `toml:"reaper_schedule"` // Cron schedule for the stale-task reaper
}

type StorageConfig struct {
	Badger    BadgerConfig    `toml:"badger"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type ArtifactsConfig struct {
	Dir string `toml:"dir"` // Directory for extracted report files, keyed by task ID
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in tabula.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Portal: PortalConfig{
			UserAgent:       "Mozilla/5.0",
			RequestTimeout:  "30s",
			RateLimit:       1, // government portals throttle aggressively
			TokenSelector:   `input[name="javax.faces.ViewState"]`,
			OptionsSelector: `select[name="j_idt76"]`,
			SelectionField:  "j_idt76",
			ExtraFields:     map[string][]string{},
		},
		Dispatcher: DispatcherConfig{
			PollInterval:   "2s",
			Concurrency:    2,
			TaskTimeout:    "5m",
			LeaseDuration:  "10m",
			ReaperSchedule: "0 * * * * *", // Every minute (cron format with seconds)
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Artifacts: ArtifactsConfig{
				Dir: "./data/artifacts",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones. Priority: env > last file > ... > first file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// Validate checks that required portal settings are present and well-formed
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequestTimeoutDuration parses the portal request timeout with a safe fallback
func (c *PortalConfig) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// PollIntervalDuration parses the dispatcher poll interval with a safe fallback
func (c *Config) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Dispatcher.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// TaskTimeoutDuration parses the per-task wall-clock budget with a safe fallback
func (c *Config) TaskTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Dispatcher.TaskTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// LeaseDurationParsed parses the claim lease duration with a safe fallback
func (c *Config) LeaseDurationParsed() time.Duration {
	d, err := time.ParseDuration(c.Dispatcher.LeaseDuration)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TABULA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("TABULA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TABULA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Portal configuration
	if endpoint := os.Getenv("TABULA_PORTAL_ENDPOINT"); endpoint != "" {
		config.Portal.Endpoint = endpoint
	}
	if userAgent := os.Getenv("TABULA_PORTAL_USER_AGENT"); userAgent != "" {
		config.Portal.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("TABULA_PORTAL_REQUEST_TIMEOUT"); requestTimeout != "" {
		config.Portal.RequestTimeout = requestTimeout
	}
	if rateLimit := os.Getenv("TABULA_PORTAL_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.ParseFloat(rateLimit, 64); err == nil && rl > 0 {
			config.Portal.RateLimit = rl
		}
	}
	if tokenSelector := os.Getenv("TABULA_PORTAL_TOKEN_SELECTOR"); tokenSelector != "" {
		config.Portal.TokenSelector = tokenSelector
	}
	if optionsSelector := os.Getenv("TABULA_PORTAL_OPTIONS_SELECTOR"); optionsSelector != "" {
		config.Portal.OptionsSelector = optionsSelector
	}
	if selectionField := os.Getenv("TABULA_PORTAL_SELECTION_FIELD"); selectionField != "" {
		config.Portal.SelectionField = selectionField
	}

	// Dispatcher configuration
	if pollInterval := os.Getenv("TABULA_DISPATCHER_POLL_INTERVAL"); pollInterval != "" {
		config.Dispatcher.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("TABULA_DISPATCHER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Dispatcher.Concurrency = c
		}
	}
	if taskTimeout := os.Getenv("TABULA_DISPATCHER_TASK_TIMEOUT"); taskTimeout != "" {
		config.Dispatcher.TaskTimeout = taskTimeout
	}
	if leaseDuration := os.Getenv("TABULA_DISPATCHER_LEASE_DURATION"); leaseDuration != "" {
		config.Dispatcher.LeaseDuration = leaseDuration
	}
	if reaperSchedule := os.Getenv("TABULA_DISPATCHER_REAPER_SCHEDULE"); reaperSchedule != "" {
		config.Dispatcher.ReaperSchedule = reaperSchedule
	}

	// Storage configuration
	if badgerPath := os.Getenv("TABULA_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if artifactsDir := os.Getenv("TABULA_ARTIFACTS_DIR"); artifactsDir != "" {
		config.Storage.Artifacts.Dir = artifactsDir
	}

	// Logging configuration
	if level := os.Getenv("TABULA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TABULA_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
