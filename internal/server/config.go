// Package server provides configuration helpers that define runtime defaults,
// environment loading and validation for the relay.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Config holds the relay settings.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64 `validate:"gt=0"`

	// AgentQueueDepth bounds each agent's command channel. When it is full
	// the coordinator waits at most DeliveryTimeout before it gives up on
	// that delivery.
	AgentQueueDepth int           `validate:"min=1"`
	EventQueueDepth int           `validate:"min=1"`
	DeliveryTimeout time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	PingInterval time.Duration `validate:"gt=0,ltfield=PongWait"`
	PongWait     time.Duration `validate:"gt=0"`
	WriteWait    time.Duration `validate:"gt=0"`

	LogLevel string `validate:"oneof=debug info warn error"`
}

// envConfig mirrors Config with the environment variable bindings.
type envConfig struct {
	Port            string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	AgentQueueDepth int           `env:"AGENT_QUEUE_DEPTH,default=8"`
	EventQueueDepth int           `env:"EVENT_QUEUE_DEPTH,default=64"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	PingInterval    time.Duration `env:"PING_INTERVAL,default=54s"`
	PongWait        time.Duration `env:"PONG_WAIT,default=60s"`
	WriteWait       time.Duration `env:"WRITE_WAIT,default=10s"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
}

var validate = validator.New()

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  4096,
		AgentQueueDepth: 8,
		EventQueueDepth: 64,
		DeliveryTimeout: 2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		LogLevel:        "info",
	}
}

// sanitizeConfig replaces unset values with defaults and normalizes origins.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.AgentQueueDepth <= 0 {
		cfg.AgentQueueDepth = def.AgentQueueDepth
	}
	if cfg.EventQueueDepth <= 0 {
		cfg.EventQueueDepth = def.EventQueueDepth
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads the configuration from the environment. Files named in
// envFiles are loaded first with godotenv; when none are given an optional
// .env in the working directory is used. Variables already present in the
// environment take precedence over file values.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	var raw envConfig
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	cfg := sanitizeConfig(Config{
		Port:            raw.Port,
		AllowedOrigins:  parseOrigins(raw.AllowedOrigins),
		MaxMessageSize:  raw.MaxMessageSize,
		AgentQueueDepth: raw.AgentQueueDepth,
		EventQueueDepth: raw.EventQueueDepth,
		DeliveryTimeout: raw.DeliveryTimeout,
		ShutdownTimeout: raw.ShutdownTimeout,
		PingInterval:    raw.PingInterval,
		PongWait:        raw.PongWait,
		WriteWait:       raw.WriteWait,
		LogLevel:        raw.LogLevel,
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	return lo.Compact(lo.Map(strings.Split(origins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
}
