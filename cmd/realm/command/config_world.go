package command

import (
	"fmt"
	"os"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-realm/internal/broadcast"
	"github.com/pixil98/go-realm/internal/driver"
	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-realm/internal/interaction"
	"github.com/pixil98/go-realm/internal/movement"
	"github.com/pixil98/go-realm/internal/persist"
	"github.com/pixil98/go-realm/internal/respawn"
	"github.com/pixil98/go-realm/internal/world"
)

type WorldConfig struct {
	Width  float64        `json:"width" env:"WIDTH"`
	Height float64        `json:"height" env:"HEIGHT"`
	Spawn  *game.Position `json:"spawn"`

	MovementTick      string `json:"movement_tick" env:"MOVEMENT_TICK"`
	RespawnInterval   string `json:"respawn_interval" env:"RESPAWN_INTERVAL"`
	BroadcastInterval string `json:"broadcast_interval" env:"BROADCAST_INTERVAL"`
	PersistInterval   string `json:"persist_interval" env:"PERSIST_INTERVAL"`
	KeepAlive         string `json:"keep_alive" env:"KEEP_ALIVE"`

	SubscriberBuffer int `json:"subscriber_buffer" env:"SUBSCRIBER_BUFFER"`
	OnlineLimit      int `json:"online_limit" env:"ONLINE_LIMIT"`

	// SeedPath holds item and entity assets loaded into an empty database.
	SeedPath string               `json:"seed_path" env:"SEED_PATH"`
	Messages interaction.Messages `json:"messages"`
}

func (c *WorldConfig) validate() error {
	el := errors.NewErrorList()

	if c.Width < 0 || c.Height < 0 {
		el.Add(fmt.Errorf("world width and height must not be negative"))
	}
	if c.Spawn != nil && !c.bounds().Contains(*c.Spawn) {
		el.Add(fmt.Errorf("spawn (%.1f, %.1f) is outside the world", c.Spawn.X, c.Spawn.Y))
	}
	for name, v := range map[string]string{
		"movement_tick":      c.MovementTick,
		"respawn_interval":   c.RespawnInterval,
		"broadcast_interval": c.BroadcastInterval,
		"persist_interval":   c.PersistInterval,
		"keep_alive":         c.KeepAlive,
	} {
		if _, err := parseDuration(v, time.Second); err != nil {
			el.Add(fmt.Errorf("parsing %s: %w", name, err))
		}
	}
	if c.SubscriberBuffer < 0 {
		el.Add(fmt.Errorf("subscriber_buffer must not be negative"))
	}
	if c.SeedPath != "" {
		if _, err := os.Stat(c.SeedPath); err != nil {
			el.Add(fmt.Errorf("invalid seed_path %q: %w", c.SeedPath, err))
		}
	}
	el.Add(c.Messages.Validate())

	return el.Err()
}

// parseDuration returns def for an empty string and rejects non-positive values.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

func mustDuration(s string, def time.Duration) time.Duration {
	d, err := parseDuration(s, def)
	if err != nil {
		return def
	}
	return d
}

func (c *WorldConfig) bounds() movement.Bounds {
	b := movement.DefaultBounds
	if c.Width > 0 {
		b.MaxX = c.Width
	}
	if c.Height > 0 {
		b.MaxY = c.Height
	}
	return b
}

func (c *WorldConfig) broadcaster(opts ...broadcast.BroadcasterOpt) *broadcast.Broadcaster {
	if c.SubscriberBuffer > 0 {
		opts = append(opts, broadcast.WithBuffer(c.SubscriberBuffer))
	}
	return broadcast.NewBroadcaster(opts...)
}

func (c *WorldConfig) serviceOpts(b *broadcast.Broadcaster) []world.ServiceOpt {
	opts := []world.ServiceOpt{
		world.WithBroadcaster(b),
		world.WithBounds(c.bounds()),
		world.WithMovementTick(mustDuration(c.MovementTick, movement.DefaultTick)),
		world.WithKeepAlive(mustDuration(c.KeepAlive, broadcast.DefaultKeepAlive)),
		world.WithMessages(c.Messages),
		world.WithOnlineLimit(c.OnlineLimit),
	}
	if c.Spawn != nil {
		opts = append(opts, world.WithSpawn(*c.Spawn))
	}
	return opts
}

// jobs are the background loops that keep the world moving.
func (c *WorldConfig) jobs(w *world.Service) []driver.Job {
	return []driver.Job{
		{
			Name:     "respawn",
			Interval: mustDuration(c.RespawnInterval, respawn.DefaultInterval),
			Manager:  w.Respawner(),
		},
		{
			Name:     "broadcast",
			Interval: mustDuration(c.BroadcastInterval, broadcast.DefaultInterval),
			Manager:  w.Broadcaster(),
		},
		{
			Name:      "persist",
			Interval:  mustDuration(c.PersistInterval, persist.DefaultInterval),
			Manager:   w.Synchronizer(),
			RunOnStop: true,
		},
	}
}
