package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pixil98/go-service"

	"github.com/pixil98/go-realm/internal/broadcast"
	"github.com/pixil98/go-realm/internal/driver"
	"github.com/pixil98/go-realm/internal/messaging"
	"github.com/pixil98/go-realm/internal/world"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// Environment overrides win over the config file
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	slog.SetDefault(cfg.logger(os.Stderr))

	ctx := context.Background()
	workers := service.WorkerList{}

	// Mirror world updates to the embedded nats server
	var bopts []broadcast.BroadcasterOpt
	if cfg.Nats.Enabled {
		ns, err := cfg.Nats.buildNatsServer()
		if err != nil {
			return nil, fmt.Errorf("creating nats server: %w", err)
		}
		bopts = append(bopts, broadcast.WithMirror(messaging.NewBatchPublisher(ns, cfg.Nats.Subject)))
		workers["nats"] = ns
	}

	store, err := cfg.Storage.open(ctx)
	if err != nil {
		return nil, err
	}

	w := world.NewService(store, cfg.World.serviceOpts(cfg.World.broadcaster(bopts...))...)
	if err := w.Load(ctx, cfg.World.SeedPath); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("loading world: %w", err)
	}

	// Create Listeners
	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		listener, err := l.BuildListener(w)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[fmt.Sprintf("%s-%d", l.Protocol, i)] = listener
	}
	workers["listeners"] = &listeners

	// The driver owns the store so the final flush happens before it closes
	workers["driver"] = driver.NewWorldDriver(cfg.World.jobs(w), driver.WithCloser(store))

	return workers, nil
}
