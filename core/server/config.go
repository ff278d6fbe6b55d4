package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "IDXSRV"

var ErrInvalidConfig = errors.New("invalid config")

// Config is read once at startup and never changes afterwards.
type Config struct {
	Host          string        `envconfig:"HOST"`
	Port          int           `envconfig:"PORT" default:"3200"`
	Welcome       string        `envconfig:"WELCOME" default:"Welcome to the idxshare index server."`
	Secret        string        `envconfig:"SECRET" default:"server123"`
	IdleTimeout   time.Duration `envconfig:"IDLE_TIMEOUT" default:"1s"`
	QueueCapacity int           `envconfig:"QUEUE_CAPACITY" default:"64"`
}

// GetConfig loads the config from IDXSRV_* environment variables.
func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process(envPrefix, &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func DefaultConfig() Config {
	return Config{
		Port:          3200,
		Welcome:       "Welcome to the idxshare index server.",
		Secret:        "server123",
		IdleTimeout:   time.Second,
		QueueCapacity: 64,
	}
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("%w: idle timeout %s", ErrInvalidConfig, c.IdleTimeout)
	case c.QueueCapacity <= 0:
		return fmt.Errorf("%w: queue capacity %d", ErrInvalidConfig, c.QueueCapacity)
	}

	return nil
}
