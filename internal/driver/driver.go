package driver

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultTickLength = time.Second
	// DefaultStopTimeout bounds the final run of jobs on shutdown.
	DefaultStopTimeout = 5 * time.Second
)

type Manager interface {
	Tick(context.Context) error
}

// Job is a Manager ticked on its own interval.
type Job struct {
	Name     string
	Interval time.Duration
	Manager  Manager
	// RunOnStop ticks the manager once more after the driver is stopped.
	RunOnStop bool
}

// WorldDriver ticks each job on its own goroutine. An error from a tick is
// logged and the job keeps running.
type WorldDriver struct {
	tickLength  time.Duration
	stopTimeout time.Duration
	jobs        []Job
	closers     []io.Closer
}

func NewWorldDriver(jobs []Job, opts ...WorldDriverOpt) *WorldDriver {
	d := &WorldDriver{
		tickLength:  DefaultTickLength,
		stopTimeout: DefaultStopTimeout,
		jobs:        jobs,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *WorldDriver) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, j := range d.jobs {
		if j.Interval <= 0 {
			j.Interval = d.tickLength
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.run(ctx, j)
		}()
	}
	wg.Wait()

	d.stop(context.WithoutCancel(ctx))

	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			slog.ErrorContext(ctx, "closing driver resource", "error", err)
		}
	}
	return nil
}

func (d *WorldDriver) run(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "driver job started", "job", j.Name, "interval", j.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Manager.Tick(ctx); err != nil {
				slog.ErrorContext(ctx, "driver job tick failed", "job", j.Name, "error", err)
			}
		}
	}
}

// stop gives every RunOnStop job one last tick.
func (d *WorldDriver) stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.stopTimeout)
	defer cancel()

	for _, j := range d.jobs {
		if !j.RunOnStop {
			continue
		}
		if err := j.Manager.Tick(ctx); err != nil {
			slog.ErrorContext(ctx, "final driver tick failed", "job", j.Name, "error", err)
			continue
		}
		slog.InfoContext(ctx, "final driver tick done", "job", j.Name)
	}
}

// Tick runs every job once, in order, stopping at the first error.
func (d *WorldDriver) Tick(ctx context.Context) error {
	for _, j := range d.jobs {
		if err := j.Manager.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
