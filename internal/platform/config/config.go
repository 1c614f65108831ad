package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
)

const appEnvLocal = "local"

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	TGAPIID       int    `env:"TG_API_ID,required"`
	TGAPIHash     string `env:"TG_API_HASH,required"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./copier.session"`

	ChannelsFile string `env:"CHANNELS_FILE" envDefault:"channels.json"`

	// Pipeline
	WorkerCount      int           `env:"WORKER_COUNT" envDefault:"3"`
	QueueSize        int           `env:"QUEUE_SIZE" envDefault:"1000"`
	DedupMaxMessages int           `env:"DEDUP_MAX_MESSAGES" envDefault:"100000"`
	DedupMaxGroups   int           `env:"DEDUP_MAX_GROUPS" envDefault:"50000"`
	AlbumWait        time.Duration `env:"ALBUM_WAIT" envDefault:"700ms"`
	MediaTempDir     string        `env:"MEDIA_TEMP_DIR"`

	// Send pacing
	SendRPS   float64 `env:"SEND_RPS" envDefault:"2"`
	SendBurst int     `env:"SEND_BURST" envDefault:"3"`

	HealthPort      int           `env:"HEALTH_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsLocal reports whether the process runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.AppEnv == appEnvLocal
}

func (c *Config) validate() error {
	switch {
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: WORKER_COUNT must be positive, got %d", errors.ErrInvalidConfig, c.WorkerCount)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: QUEUE_SIZE must be positive, got %d", errors.ErrInvalidConfig, c.QueueSize)
	case c.DedupMaxMessages < 1 || c.DedupMaxGroups < 1:
		return fmt.Errorf("%w: dedup capacities must be positive, got %d/%d", errors.ErrInvalidConfig, c.DedupMaxMessages, c.DedupMaxGroups)
	case c.SendRPS <= 0:
		return fmt.Errorf("%w: SEND_RPS must be positive, got %v", errors.ErrInvalidConfig, c.SendRPS)
	case c.HealthPort < 0:
		return fmt.Errorf("%w: HEALTH_PORT must not be negative, got %d", errors.ErrInvalidConfig, c.HealthPort)
	}

	return nil
}
