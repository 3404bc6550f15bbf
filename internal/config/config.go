// ABOUTME: Configuration loading and parsing for tars-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file leaves fields unset.
const (
	DefaultHTTPAddr      = ":3000"
	DefaultSendTimeout   = 25 * time.Second
	DefaultDialRetryWait = 3 * time.Second
	DefaultPDFPath       = "assets/menu.pdf"
)

// Config represents the complete tars-gateway configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Network NetworkConfig `yaml:"network"`
	Assets  AssetsConfig  `yaml:"assets"`
	Send    SendConfig    `yaml:"send"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the listen address for the WebSocket/HTTP server
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	// CredentialsPath is the SQLite database holding the chat-network
	// session credentials. Loaded at startup, overwritten on every
	// credential update from the network layer.
	CredentialsPath string `yaml:"credentials_path"`

	DialRetryWait time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DialRetryWaitRaw string `yaml:"dial_retry_wait"`
}

// NetworkConfig selects the chat-network backend
type NetworkConfig struct {
	// Mode selects the network implementation. "sim" runs the in-process
	// simulator; production deployments wire a real session.Network in.
	Mode string `yaml:"mode"`
}

// AssetsConfig holds paths to pre-provisioned static assets
type AssetsConfig struct {
	// PDFPath is the document sent by the send_pdf operation. Its absence
	// is a request-time error, not a startup failure.
	PDFPath string `yaml:"pdf_path"`
}

// SendConfig holds outbound dispatch configuration
type SendConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
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

	// Expand environment variables in the raw YAML content
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

// applyDefaults fills unset fields. The listen address falls back to the
// PORT environment variable before the compiled-in default.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Server.HTTPAddr = ":" + port
		} else {
			c.Server.HTTPAddr = DefaultHTTPAddr
		}
	}
	if c.Send.Timeout == 0 {
		c.Send.Timeout = DefaultSendTimeout
	}
	if c.Session.DialRetryWait == 0 {
		c.Session.DialRetryWait = DefaultDialRetryWait
	}
	if c.Assets.PDFPath == "" {
		c.Assets.PDFPath = DefaultPDFPath
	}
	if c.Network.Mode == "" {
		c.Network.Mode = "sim"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Session.CredentialsPath == "" {
		return fmt.Errorf("session.credentials_path is required")
	}

	if c.Network.Mode != "sim" {
		return fmt.Errorf("network.mode %q is not supported (expected \"sim\")", c.Network.Mode)
	}

	if c.Send.Timeout < 0 {
		return fmt.Errorf("send.timeout must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Send.TimeoutRaw != "" {
		cfg.Send.Timeout, err = time.ParseDuration(cfg.Send.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing send.timeout %q: %w", cfg.Send.TimeoutRaw, err)
		}
	}

	if cfg.Session.DialRetryWaitRaw != "" {
		cfg.Session.DialRetryWait, err = time.ParseDuration(cfg.Session.DialRetryWaitRaw)
		if err != nil {
			return fmt.Errorf("parsing session.dial_retry_wait %q: %w", cfg.Session.DialRetryWaitRaw, err)
		}
	}

	return nil
}
