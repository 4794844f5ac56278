// Package config loads relay settings from an optional relay.yaml, a .env
// file and RELAY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

const (
	EnvPrefix = "RELAY"
	FileName  = "relay.yaml"
)

type Config struct {
	Addr string `fig:"addr" default:":3000"`

	Log struct {
		Level string `fig:"level" default:"info"`
		Dev   bool   `fig:"dev"`
	} `fig:"log"`

	Session Session `fig:"session"`
	Room    Room    `fig:"room"`

	// DatabaseURL enables room history in Postgres. Empty disables it.
	DatabaseURL string `fig:"database_url"`
	StaticDir   string `fig:"static_dir"`
}

type Session struct {
	OutboxSize   int           `fig:"outbox_size" default:"256"`
	PingInterval time.Duration `fig:"ping_interval" default:"25s"`
	WriteTimeout time.Duration `fig:"write_timeout" default:"10s"`
	ReadLimit    int64         `fig:"read_limit" default:"1048576"`
	// Env form: RELAY_SESSION_ALLOWED_ORIGINS=[localhost:*,example.com]
	AllowedOrigins []string `fig:"allowed_origins" default:"[*]"`
}

// Room.IdleTimeout of zero keeps rooms until their host leaves.
type Room struct {
	IdleTimeout  time.Duration `fig:"idle_timeout"`
	ReapInterval time.Duration `fig:"reap_interval" default:"1m"`
}

// Load reads the configuration. An empty path searches "." and "configs" for
// relay.yaml and falls back to environment only when none exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var err error
	if path != "" {
		err = fig.Load(&cfg, fig.File(filepath.Base(path)), fig.Dirs(filepath.Dir(path)), fig.UseEnv(EnvPrefix))
	} else {
		err = fig.Load(&cfg, fig.File(FileName), fig.Dirs(".", "configs"), fig.UseEnv(EnvPrefix))
		if errors.Is(err, fig.ErrFileNotFound) {
			cfg = Config{}
			err = fig.Load(&cfg, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("config: addr is empty")
	case c.Session.OutboxSize <= 0:
		return fmt.Errorf("config: session.outbox_size must be positive, got %d", c.Session.OutboxSize)
	case c.Session.WriteTimeout <= 0:
		return fmt.Errorf("config: session.write_timeout must be positive, got %s", c.Session.WriteTimeout)
	case c.Session.PingInterval < 0:
		return fmt.Errorf("config: session.ping_interval is negative")
	case c.Room.IdleTimeout < 0:
		return fmt.Errorf("config: room.idle_timeout is negative")
	case c.Room.IdleTimeout > 0 && c.Room.ReapInterval <= 0:
		return fmt.Errorf("config: room.reap_interval must be positive when idle_timeout is set")
	}
	return nil
}
