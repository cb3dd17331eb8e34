package command

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pixil98/go-errors"
)

// EnvPrefix prefixes every environment override, e.g. REALM_STORAGE_PATH.
const EnvPrefix = "REALM_"

type Config struct {
	LogLevel  string           `json:"log_level" env:"LOG_LEVEL"`
	LogFormat string           `json:"log_format" env:"LOG_FORMAT"`
	Listeners []ListenerConfig `json:"listeners"`
	World     WorldConfig      `json:"world" envPrefix:"WORLD_"`
	Storage   StorageConfig    `json:"storage" envPrefix:"STORAGE_"`
	Nats      NatsConfig       `json:"nats" envPrefix:"NATS_"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if _, err := parseLevel(c.LogLevel); err != nil {
		el.Add(err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		el.Add(fmt.Errorf("log_format must be text or json"))
	}

	if len(c.Listeners) == 0 {
		el.Add(fmt.Errorf("at least one listener is required"))
	}
	for i, l := range c.Listeners {
		if err := l.validate(); err != nil {
			el.Add(fmt.Errorf("listener %d: %w", i, err))
		}
	}

	el.Add(c.World.validate())
	el.Add(c.Storage.validate())
	el.Add(c.Nats.validate())

	return el.Err()
}

// applyEnv overrides file values with any REALM_* variables that are set.
func (c *Config) applyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// logger builds the configured handler. Validate must have passed.
func (c *Config) logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
