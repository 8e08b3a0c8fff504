package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL"`

	// Storage. An empty DatabaseURL selects SQLite at SQLitePath.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/serverchat.db"`
	RedisURL    string `envconfig:"REDIS_URL"`

	// Message events
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"chat.messages"`

	// Websocket transport
	WSSendBuffer      int     `envconfig:"WS_SEND_BUFFER" default:"256"`
	WSMaxMessageBytes int64   `envconfig:"WS_MAX_MESSAGE_BYTES" default:"65536"`
	WSEventsPerSecond float64 `envconfig:"WS_EVENTS_PER_SECOND" default:"20"`
	WSEventBurst      int     `envconfig:"WS_EVENT_BURST" default:"40"`

	// Rate limiting
	RateLimitWhitelist []string `envconfig:"RATE_LIMIT_WHITELIST"` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `envconfig:"AUTO_BLOCK_ENABLED" default:"false"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{}
	envconfig.MustProcess("", cfg)

	cfg.KafkaBrokers = trimList(cfg.KafkaBrokers)
	cfg.RateLimitWhitelist = trimList(cfg.RateLimitWhitelist)

	// In production, require a real database
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Level returns the configured log level, defaulting to debug in
// development and info elsewhere.
func (c *Config) Level() zerolog.Level {
	if c.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(c.LogLevel); err == nil {
			return lvl
		}
	}
	if c.IsDevelopment() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func trimList(in []string) []string {
	var out []string
	for _, entry := range in {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
