// ABOUTME: Configuration loading and parsing for latch-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete latch-gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Controller ControllerConfig `yaml:"controller"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Admin      AdminConfig      `yaml:"admin"`
	Sim        SimConfig        `yaml:"sim"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the web listener address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// StorageConfig holds the card record locations.
type StorageConfig struct {
	Dir         string `yaml:"dir"`
	RosterFile  string `yaml:"roster_file"`
	HistoryFile string `yaml:"history_file"`
}

// ControllerConfig holds coordinator timing.
type ControllerConfig struct {
	FastTick            time.Duration `yaml:"-"`
	SlowTick            time.Duration `yaml:"-"`
	GrantDuration       time.Duration `yaml:"-"`
	EnrollTimeout       time.Duration `yaml:"-"`
	ConversationTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	FastTickRaw            string `yaml:"fast_tick"`
	SlowTickRaw            string `yaml:"slow_tick"`
	GrantDurationRaw       string `yaml:"grant_duration"`
	EnrollTimeoutRaw       string `yaml:"enroll_timeout"`
	ConversationTimeoutRaw string `yaml:"conversation_timeout"`
}

// TelegramConfig holds the remote chat channel configuration.
type TelegramConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BotToken    string `yaml:"bot_token"`
	AdminChatID string `yaml:"admin_chat_id"`
}

// AdminConfig holds the web admin credentials.
type AdminConfig struct {
	// PasswordHash is a bcrypt hash of the single admin password.
	PasswordHash string `yaml:"password_hash"`
	// SessionSecret signs the session cookie.
	SessionSecret string `yaml:"session_secret"`
}

// SimConfig controls the simulated peripheral surface. The daemon always
// drives simulated strike, sensor, reader and LED drivers; InjectAPI
// additionally exposes authenticated JSON endpoints that feed scans and
// door transitions into them.
type SimConfig struct {
	InjectAPI bool `yaml:"inject_api"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data"
	}
	if c.Storage.RosterFile == "" {
		c.Storage.RosterFile = "users.txt"
	}
	if c.Storage.HistoryFile == "" {
		c.Storage.HistoryFile = "access_log.txt"
	}
	if c.Controller.FastTick == 0 {
		c.Controller.FastTick = 50 * time.Millisecond
	}
	if c.Controller.SlowTick == 0 {
		c.Controller.SlowTick = time.Second
	}
	if c.Controller.GrantDuration == 0 {
		c.Controller.GrantDuration = 10 * time.Second
	}
	if c.Controller.EnrollTimeout == 0 {
		c.Controller.EnrollTimeout = 30 * time.Second
	}
	if c.Controller.ConversationTimeout == 0 {
		c.Controller.ConversationTimeout = time.Minute
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Admin.PasswordHash == "" {
		return fmt.Errorf("admin.password_hash is required")
	}
	if c.Admin.SessionSecret == "" {
		return fmt.Errorf("admin.session_secret is required")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.AdminChatID == "" {
			return fmt.Errorf("telegram.admin_chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Controller.FastTickRaw, "fast_tick", &cfg.Controller.FastTick},
		{cfg.Controller.SlowTickRaw, "slow_tick", &cfg.Controller.SlowTick},
		{cfg.Controller.GrantDurationRaw, "grant_duration", &cfg.Controller.GrantDuration},
		{cfg.Controller.EnrollTimeoutRaw, "enroll_timeout", &cfg.Controller.EnrollTimeout},
		{cfg.Controller.ConversationTimeoutRaw, "conversation_timeout", &cfg.Controller.ConversationTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
