// Package config loads relay configuration from environment variables,
// with an optional TOML file override (config/relay.toml).
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	// HTTP surfaces
	ListenAddr      string
	MetricsAddr     string
	RateLimitPerSec int
	CORSOrigins     []string

	// Inbound auth
	WebhookSecret string

	// Outbound sink: "telegram", "webhook" or "log"
	Sink             string
	TelegramBotToken string
	TelegramChatID   string
	SinkWebhookURL   string

	// Position state backend: "memory" or "redis"
	StateBackend  string
	RedisAddr     string
	RedisPassword string

	// Signal journal
	JournalPath string
}

// Load reads configuration from environment variables with sensible
// defaults, then applies the TOML file override if one exists.
// WEBHOOK_SECRET is required.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8000"),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		RateLimitPerSec: getEnvInt("RATE_LIMIT_PER_SEC", 20),
		CORSOrigins:     getEnvSlice("CORS_ORIGINS", []string{"*"}),

		WebhookSecret: mustEnv("WEBHOOK_SECRET"),

		Sink:             getEnv("SINK", "telegram"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHANNEL_ID", ""),
		SinkWebhookURL:   getEnv("SINK_WEBHOOK_URL", ""),

		StateBackend:  getEnv("STATE_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JournalPath: getEnv("JOURNAL_PATH", "data/signals.db"),
	}

	if err := cfg.applyFile(getEnv("CONFIG_FILE", "config/relay.toml")); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors the TOML layout. Only set values override the env.
type fileConfig struct {
	Server struct {
		ListenAddr      string   `toml:"listen_addr"`
		MetricsAddr     string   `toml:"metrics_addr"`
		RateLimitPerSec int      `toml:"rate_limit_per_sec"`
		CORSOrigins     []string `toml:"cors_origins"`
	} `toml:"server"`
	Sink struct {
		Kind       string `toml:"kind"`
		WebhookURL string `toml:"webhook_url"`
	} `toml:"sink"`
	State struct {
		Backend   string `toml:"backend"`
		RedisAddr string `toml:"redis_addr"`
	} `toml:"state"`
	Journal struct {
		Path string `toml:"path"`
	} `toml:"journal"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Server.ListenAddr != "" {
		c.ListenAddr = fc.Server.ListenAddr
	}
	if fc.Server.MetricsAddr != "" {
		c.MetricsAddr = fc.Server.MetricsAddr
	}
	if fc.Server.RateLimitPerSec > 0 {
		c.RateLimitPerSec = fc.Server.RateLimitPerSec
	}
	if len(fc.Server.CORSOrigins) > 0 {
		c.CORSOrigins = fc.Server.CORSOrigins
	}
	if fc.Sink.Kind != "" {
		c.Sink = fc.Sink.Kind
	}
	if fc.Sink.WebhookURL != "" {
		c.SinkWebhookURL = fc.Sink.WebhookURL
	}
	if fc.State.Backend != "" {
		c.StateBackend = fc.State.Backend
	}
	if fc.State.RedisAddr != "" {
		c.RedisAddr = fc.State.RedisAddr
	}
	if fc.Journal.Path != "" {
		c.JournalPath = fc.Journal.Path
	}

	log.Printf("[config] applied overrides from %s", path)
	return nil
}

func (c *Config) validate() error {
	switch c.Sink {
	case "telegram":
		if c.TelegramBotToken == "" || c.TelegramChatID == "" {
			return fmt.Errorf("sink %q requires TELEGRAM_BOT_TOKEN and TELEGRAM_CHANNEL_ID", c.Sink)
		}
	case "webhook":
		if c.SinkWebhookURL == "" {
			return fmt.Errorf("sink %q requires SINK_WEBHOOK_URL", c.Sink)
		}
	case "log":
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}

	switch c.StateBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown state backend %q", c.StateBackend)
	}
	return nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] skipping invalid value for %s: %q", key, v)
		return fallback
	}
	return n
}

func getEnvSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
