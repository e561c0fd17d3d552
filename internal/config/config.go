// ABOUTME: Configuration loading and parsing for wa-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the deduplication windows and the engine call timeout.
const (
	DefaultInboundWindow = 15 * time.Minute
	DefaultReplyWindow   = 5 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultEngineTimeout = 30 * time.Second
)

// Config represents the complete wa-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Engine   EngineConfig   `yaml:"engine"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Auth     AuthConfig     `yaml:"auth"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// ProviderConfig holds messaging provider credentials. Token and phone
// number id may be left empty; outbound sends are then rejected at call time.
type ProviderConfig struct {
	APIURL        string `yaml:"api_url"`
	Token         string `yaml:"token"`
	PhoneNumberID string `yaml:"phone_number_id"`
}

// EngineConfig holds the conversational-reply engine endpoint
type EngineConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// WebhookConfig holds webhook verification configuration
type WebhookConfig struct {
	VerifyToken string `yaml:"verify_token"`
}

// AuthConfig holds authentication configuration for the admin surface
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DedupeConfig holds the retention windows for the two dedup stores
type DedupeConfig struct {
	InboundWindow time.Duration `yaml:"-"`
	ReplyWindow   time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	InboundWindowRaw string `yaml:"inbound_window"`
	ReplyWindowRaw   string `yaml:"reply_window"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
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

	return Parse(data)
}

// Parse parses raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Webhook.VerifyToken == "" {
		return fmt.Errorf("webhook.verify_token is required")
	}

	// Provider credentials are optional as a pair: a relay without them can
	// still receive webhooks and fan events out, it just cannot send.
	if (c.Provider.Token == "") != (c.Provider.PhoneNumberID == "") {
		return fmt.Errorf("provider.token and provider.phone_number_id must be set together")
	}

	return nil
}

// applyDefaults fills in defaults for optional timing fields.
func applyDefaults(cfg *Config) {
	if cfg.Dedupe.InboundWindow == 0 {
		cfg.Dedupe.InboundWindow = DefaultInboundWindow
	}
	if cfg.Dedupe.ReplyWindow == 0 {
		cfg.Dedupe.ReplyWindow = DefaultReplyWindow
	}
	if cfg.Dedupe.SweepInterval == 0 {
		cfg.Dedupe.SweepInterval = DefaultSweepInterval
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = DefaultEngineTimeout
	}
	if cfg.Provider.APIURL == "" {
		cfg.Provider.APIURL = "https://graph.facebook.com/v22.0"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dedupe.InboundWindowRaw != "" {
		cfg.Dedupe.InboundWindow, err = time.ParseDuration(cfg.Dedupe.InboundWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing inbound_window %q: %w", cfg.Dedupe.InboundWindowRaw, err)
		}
	}

	if cfg.Dedupe.ReplyWindowRaw != "" {
		cfg.Dedupe.ReplyWindow, err = time.ParseDuration(cfg.Dedupe.ReplyWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing reply_window %q: %w", cfg.Dedupe.ReplyWindowRaw, err)
		}
	}

	if cfg.Dedupe.SweepIntervalRaw != "" {
		cfg.Dedupe.SweepInterval, err = time.ParseDuration(cfg.Dedupe.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Dedupe.SweepIntervalRaw, err)
		}
	}

	if cfg.Engine.TimeoutRaw != "" {
		cfg.Engine.Timeout, err = time.ParseDuration(cfg.Engine.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing engine timeout %q: %w", cfg.Engine.TimeoutRaw, err)
		}
	}

	return nil
}
