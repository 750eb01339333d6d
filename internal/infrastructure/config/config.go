package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// maxDimension is the largest column or row count a terminal accepts.
const maxDimension = 65535

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"3000" yaml:"port"`
	Host        string   `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
	StaticDir   string   `envconfig:"STATIC_DIR" yaml:"static_dir"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*" yaml:"cors_origins"`
}

// TerminalConfig holds the parameters every spawned shell session starts with.
type TerminalConfig struct {
	Shell          string        `envconfig:"TERM_SHELL" yaml:"shell"`
	Name           string        `envconfig:"TERM_NAME" default:"xterm-color" yaml:"name"`
	Cols           int           `envconfig:"TERM_COLS" default:"80" yaml:"cols"`
	Rows           int           `envconfig:"TERM_ROWS" default:"30" yaml:"rows"`
	WorkDir        string        `envconfig:"TERM_WORKDIR" yaml:"workdir"`
	MaxSessions    int           `envconfig:"MAX_SESSIONS" default:"64" yaml:"max_sessions"`
	ReadBufferSize int           `envconfig:"TERM_READ_BUFFER" default:"32768" yaml:"read_buffer"`
	MaxMessageSize int64         `envconfig:"TERM_MAX_MESSAGE" default:"1048576" yaml:"max_message"`
	WriteTimeout   time.Duration `envconfig:"TERM_WRITE_TIMEOUT" default:"10s" yaml:"write_timeout"`
	KillGrace      time.Duration `envconfig:"TERM_KILL_GRACE" default:"2s" yaml:"kill_grace"`
	ExitFlush      time.Duration `envconfig:"TERM_EXIT_FLUSH" default:"1s" yaml:"exit_flush"`
	SpawnFailures  int           `envconfig:"TERM_SPAWN_FAILURES" default:"5" yaml:"spawn_failures"`
	SpawnCooldown  time.Duration `envconfig:"TERM_SPAWN_COOLDOWN" default:"10s" yaml:"spawn_cooldown"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds per-IP limits for new terminal connections.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10" yaml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile loads configuration from the environment and then overlays the
// YAML file at path. Keys present in the file win over the environment.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "3000",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Terminal: TerminalConfig{
			Name:           "xterm-color",
			Cols:           80,
			Rows:           30,
			MaxSessions:    64,
			ReadBufferSize: 32 * 1024,
			MaxMessageSize: 1 << 20,
			WriteTimeout:   10 * time.Second,
			KillGrace:      2 * time.Second,
			ExitFlush:      time.Second,
			SpawnFailures:  5,
			SpawnCooldown:  10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
	}
}

// Validate rejects values the broker cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port must not be empty"))
	}
	if c.Terminal.Cols <= 0 || c.Terminal.Rows <= 0 || c.Terminal.Cols > maxDimension || c.Terminal.Rows > maxDimension {
		errs = append(errs, fmt.Errorf("terminal geometry must be between 1x1 and %dx%d, got %dx%d",
			maxDimension, maxDimension, c.Terminal.Cols, c.Terminal.Rows))
	}
	if c.Terminal.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("max sessions must not be negative, got %d", c.Terminal.MaxSessions))
	}
	if c.Terminal.SpawnFailures < 0 {
		errs = append(errs, fmt.Errorf("spawn failure threshold must not be negative, got %d", c.Terminal.SpawnFailures))
	}
	if c.Terminal.ReadBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("read buffer size must be positive, got %d", c.Terminal.ReadBufferSize))
	}
	if c.Terminal.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max message size must be positive, got %d", c.Terminal.MaxMessageSize))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit rps and burst must be positive when enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
