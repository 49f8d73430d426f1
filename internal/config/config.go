package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"19998"`

	// Authentication
	APISecretKey     string `env:"API_SECRET_KEY"`
	EnableAPIKeyAuth bool   `env:"ENABLE_API_KEY_AUTH" envDefault:"true"`

	// Logging
	Debug bool `env:"DEBUG" envDefault:"false"`

	// Filesystem layout — all three are created at startup.
	DataDir  string `env:"DATA_DIR" envDefault:"./data"`
	CacheDir string `env:"CACHE_DIR" envDefault:"./cache"`
	LogDir   string `env:"LOG_DIR" envDefault:"./logs"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Queue scheduler (C5) tuning.
	QueueTickInterval   time.Duration `env:"QUEUE_TICK_INTERVAL" envDefault:"1s"`
	QueueWorkerPoolSize int           `env:"QUEUE_WORKER_POOL_SIZE" envDefault:"0"` // 0 = min(32, 2*accounts)

	// Availability monitor (C6) tuning.
	MonitorCheckInterval time.Duration `env:"MONITOR_CHECK_INTERVAL" envDefault:"60s"`

	// Notifier (C7) — Telegram-shaped sink. Empty token disables sending;
	// messages are logged only.
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if cfg.MonitorCheckInterval < 30*time.Second {
		return nil, fmt.Errorf("MONITOR_CHECK_INTERVAL must be at least 30s, got %s", cfg.MonitorCheckInterval)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
