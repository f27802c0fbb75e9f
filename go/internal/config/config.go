// Package config loads the cooldown service configuration from a YAML file
// with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/finoxa/go/internal/cooldown"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQL    = "sql"
	BackendNATS   = "nats"
)

const DefaultPath = "config.yaml"

type Config struct {
	Port     string        `yaml:"port"`
	LogLevel string        `yaml:"log_level"`
	Interval time.Duration `yaml:"interval"`

	Store    StoreConfig           `yaml:"store"`
	NATS     NATSConfig            `yaml:"nats"`
	Supabase SupabaseConfig        `yaml:"supabase"`
	Audit    AuditConfig           `yaml:"audit"`
	Flows    map[string]FlowConfig `yaml:"flows"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	File    string `yaml:"file"`
	Table   string `yaml:"table"`
	// Bucket and TTL apply to the nats backend.
	Bucket string        `yaml:"bucket"`
	TTL    time.Duration `yaml:"ttl"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type SupabaseConfig struct {
	URL     string        `yaml:"url"`
	AnonKey string        `yaml:"anon_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxResends caps successful resends per email within Window. Zero disables it.
	MaxResends int           `yaml:"max_resends"`
	Window     time.Duration `yaml:"window"`
}

// ResendLimit returns the per-email limit enforced when audit is enabled.
func (a AuditConfig) ResendLimit() cooldown.ResendLimit {
	if !a.Enabled {
		return cooldown.ResendLimit{}
	}
	return cooldown.ResendLimit{Max: a.MaxResends, Window: a.Window}
}

type FlowConfig struct {
	Seconds int    `yaml:"seconds"`
	Resend  string `yaml:"resend"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:     "8080",
		LogLevel: "info",
		Interval: time.Second,
		Store: StoreConfig{
			Backend: BackendFile,
			File:    ".finoxa/cooldowns.yaml",
			Bucket:  "COOLDOWN_COUNTERS",
			TTL:     24 * time.Hour,
		},
		NATS:  NATSConfig{URL: "nats://localhost:4222"},
		Audit: AuditConfig{Window: time.Hour},
	}
}

// Load reads path (a missing file yields the defaults), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file location, honouring COOLDOWN_CONFIG.
func Path() string {
	return getEnv("COOLDOWN_CONFIG", DefaultPath)
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Interval = getEnvAsDuration("COOLDOWN_INTERVAL", c.Interval)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.File = getEnv("STATE_FILE", c.Store.File)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)

	c.Supabase.URL = getEnv("SUPABASE_URL", c.Supabase.URL)
	c.Supabase.AnonKey = getEnv("SUPABASE_ANON_KEY", c.Supabase.AnonKey)
	c.Supabase.Timeout = getEnvAsDuration("SUPABASE_TIMEOUT", c.Supabase.Timeout)

	c.Audit.Enabled = getEnvAsBool("AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.MaxResends = getEnvAsInt("AUDIT_MAX_RESENDS", c.Audit.MaxResends)
	c.Audit.Window = getEnvAsDuration("AUDIT_WINDOW", c.Audit.Window)

	if seconds := getEnvAsInt("COOLDOWN_SECONDS", 0); seconds > 0 {
		for name, fc := range c.Flows {
			fc.Seconds = seconds
			c.Flows[name] = fc
		}
		if len(c.Flows) == 0 {
			c.Flows = make(map[string]FlowConfig)
			for flow := range cooldown.DefaultFlows() {
				c.Flows[string(flow)] = FlowConfig{Seconds: seconds}
			}
		}
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQL:
	case BackendFile:
		if c.Store.File == "" {
			return errors.New("store.file is required for the file backend")
		}
	case BackendNATS:
		if !c.NATS.Enabled {
			return errors.New("the nats store backend requires nats.enabled")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.Audit.MaxResends < 0 {
		return fmt.Errorf("audit.max_resends must not be negative, got %d", c.Audit.MaxResends)
	}
	if c.Audit.MaxResends > 0 && c.Audit.Window <= 0 {
		return fmt.Errorf("audit.window must be positive, got %s", c.Audit.Window)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if _, err := c.CooldownFlows(); err != nil {
		return err
	}
	return nil
}

// CooldownFlows converts the configured flows. Flows missing from the file keep
// their defaults.
func (c *Config) CooldownFlows() (map[cooldown.Flow]cooldown.FlowConfig, error) {
	flows := cooldown.DefaultFlows()
	for name, fc := range c.Flows {
		flow, err := cooldown.ParseFlow(name)
		if err != nil {
			return nil, err
		}
		current := flows[flow]
		if fc.Seconds != 0 {
			if fc.Seconds < 0 {
				return nil, fmt.Errorf("flow %s: seconds must be positive, got %d", name, fc.Seconds)
			}
			current.Seconds = fc.Seconds
		}
		if fc.Resend != "" {
			kind := cooldown.ResendKind(strings.ToLower(fc.Resend))
			if kind != cooldown.ResendSignup && kind != cooldown.ResendRecovery {
				return nil, fmt.Errorf("flow %s: unknown resend kind %q", name, fc.Resend)
			}
			current.Resend = kind
		}
		flows[flow] = current
	}
	return flows, nil
}

// Level returns the zerolog level for LogLevel, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
